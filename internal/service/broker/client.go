// Package broker is the execution bridge client: it opens and closes
// positions and reads the account.
package broker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/internal/service/bridge"
	xhttp "FXEngine/pkg/http"
)

type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type Client struct {
	base *bridge.Base
}

func New(cfg Config) *Client {
	return &Client{base: bridge.NewBase(cfg.BaseURL, cfg.APIKey, cfg.Timeout)}
}

type orderReq struct {
	Pair           string  `json:"pair"`
	Side           string  `json:"side"`
	Lots           float64 `json:"lots"`
	StopLossPips   float64 `json:"stop_loss_pips"`
	TakeProfitPips float64 `json:"take_profit_pips"`
	Comment        string  `json:"comment,omitempty"`
}

type orderResp struct {
	Ticket string  `json:"ticket"`
	Price  float64 `json:"price"`
}

// OpenPosition sends a market order. The intent ID travels as the
// idempotency key so a repeated request cannot open a second position.
func (c *Client) OpenPosition(ctx context.Context, intent models.TradeIntent) (models.ExecutionAck, error) {
	ctx = bridge.WithIdempotencyKey(ctx, intent.ID)
	var resp orderResp
	err := c.base.PostJSON(ctx, "/orders", orderReq{
		Pair:           intent.Pair,
		Side:           string(intent.Direction),
		Lots:           intent.LotSize,
		StopLossPips:   intent.StopLossPips,
		TakeProfitPips: intent.TakeProfitPips,
		Comment:        intent.Strategy,
	}, &resp)
	if err != nil {
		return models.ExecutionAck{}, fmt.Errorf("open %s: %w", intent.Pair, err)
	}
	if resp.Ticket == "" {
		return models.ExecutionAck{}, fmt.Errorf("open %s: %w: empty ticket", intent.Pair, domrepo.ErrTransient)
	}
	return models.ExecutionAck{Ticket: resp.Ticket, FillPrice: resp.Price}, nil
}

func (c *Client) ClosePosition(ctx context.Context, ticket string) error {
	if err := c.base.Do(ctx, xhttp.MethodDelete, "/positions/"+url.PathEscape(ticket), nil, nil, nil); err != nil {
		return fmt.Errorf("close %s: %w", ticket, err)
	}
	return nil
}

type positionDTO struct {
	Ticket    string  `json:"ticket"`
	Pair      string  `json:"pair"`
	Side      string  `json:"side"`
	Lots      float64 `json:"lots"`
	OpenPrice float64 `json:"open_price"`
	Profit    float64 `json:"profit"`
	OpenTime  int64   `json:"open_time"`
}

type positionsResp struct {
	Positions []positionDTO `json:"positions"`
}

func (c *Client) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	var resp positionsResp
	if err := c.base.GetJSON(ctx, "/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]models.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		dir := models.Buy
		if strings.EqualFold(p.Side, string(models.Sell)) {
			dir = models.Sell
		}
		out = append(out, models.Position{
			Ticket:    p.Ticket,
			Pair:      strings.ToUpper(p.Pair),
			Direction: dir,
			LotSize:   p.Lots,
			OpenPrice: p.OpenPrice,
			Profit:    p.Profit,
			OpenedAt:  time.Unix(p.OpenTime, 0).UTC(),
		})
	}
	return out, nil
}

func (c *Client) Account(ctx context.Context) (models.Account, error) {
	var acc models.Account
	if err := c.base.GetJSON(ctx, "/account", nil, &acc); err != nil {
		return acc, fmt.Errorf("account: %w", err)
	}
	return acc, nil
}

type timeResp struct {
	Time int64 `json:"time"`
}

// ServerTime returns the broker clock in UTC.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var resp timeResp
	if err := c.base.GetJSON(ctx, "/time", nil, &resp); err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	if resp.Time <= 0 {
		return time.Time{}, fmt.Errorf("server time: %w: zero timestamp", domrepo.ErrTransient)
	}
	return time.Unix(resp.Time, 0).UTC(), nil
}

var _ domrepo.Broker = (*Client)(nil)
