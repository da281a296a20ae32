package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	pkgkafka "FXEngine/pkg/kafka"
	"FXEngine/pkg/logger"
	"FXEngine/pkg/util"
)

// NewsEventsHandler consumes economic calendar events from Kafka into the
// in-memory calendar used by the news checklist condition.
type NewsEventsHandler struct {
	topic    string
	calendar domrepo.NewsCalendar
	metrics  domrepo.Metrics
	lgr      *logger.Logger
}

func NewNewsEventsHandler(topic string, calendar domrepo.NewsCalendar, metrics domrepo.Metrics, lgr *logger.Logger) *NewsEventsHandler {
	return &NewsEventsHandler{topic: topic, calendar: calendar, metrics: metrics, lgr: lgr}
}

func (h *NewsEventsHandler) Topic() string { return h.topic }

// incoming message schema: {id, currency, title, impact, t | time}
func (h *NewsEventsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID       string `json:"id"`
		Currency string `json:"currency"`
		Title    string `json:"title"`
		Impact   string `json:"impact"`
		T        int64  `json:"t"`
		Time     string `json:"time"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("news_unmarshal")
		return fmt.Errorf("decode news event: %w", err)
	}

	var at time.Time
	switch {
	case m.T > 1e11: // ms
		at = time.UnixMilli(m.T).UTC()
	case m.T > 0:
		at = time.Unix(m.T, 0).UTC()
	default:
		t, ok := util.ParseTime(m.Time)
		if !ok {
			h.metrics.RecordError("news_time")
			h.lgr.Warn("news event without usable time, dropped", logger.String("id", m.ID), logger.String("time", m.Time))
			return nil
		}
		at = t.UTC()
	}

	ev := models.NewsEvent{
		ID:       m.ID,
		Currency: strings.ToUpper(strings.TrimSpace(m.Currency)),
		Title:    m.Title,
		Impact:   strings.ToLower(strings.TrimSpace(m.Impact)),
		At:       at,
	}
	if len(ev.Currency) != 3 {
		h.metrics.RecordError("news_currency")
		h.lgr.Warn("news event with invalid currency, dropped", logger.String("id", m.ID), logger.String("currency", m.Currency))
		return nil
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s-%d-%s", ev.Currency, ev.At.Unix(), ev.Title)
	}
	h.calendar.Upsert(ev)
	h.metrics.RecordLatency("news_lead_seconds", time.Until(ev.At).Seconds())
	if ev.HighImpact() {
		h.lgr.Info("high impact news scheduled",
			logger.String("currency", ev.Currency),
			logger.String("title", ev.Title),
			logger.String("at", ev.At.Format(time.RFC3339)),
		)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*NewsEventsHandler)(nil)
