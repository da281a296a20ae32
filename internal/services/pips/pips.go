// Package pips converts between prices, pips and account currency for forex
// and metal symbols.
package pips

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	standardLot = 100000
	metalLot    = 100
)

var (
	pipFour = decimal.New(1, -4)
	pipTwo  = decimal.New(1, -2)
)

// Split returns the base and quote currencies of a six letter symbol.
func Split(pair string) (base, quote string, err error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	if len(p) != 6 {
		return "", "", fmt.Errorf("invalid pair %q", pair)
	}
	return p[:3], p[3:], nil
}

func isMetal(pair string) bool {
	p := strings.ToUpper(pair)
	return strings.HasPrefix(p, "XAU") || strings.HasPrefix(p, "XAG")
}

// Size returns the price increment of one pip.
func Size(pair string) decimal.Decimal {
	p := strings.ToUpper(pair)
	if isMetal(p) || strings.HasSuffix(p, "JPY") {
		return pipTwo
	}
	return pipFour
}

// ContractSize returns units per standard lot.
func ContractSize(pair string) int64 {
	if isMetal(pair) {
		return metalLot
	}
	return standardLot
}

// FromPrice converts an absolute price distance into pips.
func FromPrice(pair string, distance float64) float64 {
	d := decimal.NewFromFloat(distance).Abs()
	return d.Div(Size(pair)).InexactFloat64()
}

// ToPrice converts a pip count into a price distance.
func ToPrice(pair string, pipCount float64) float64 {
	return decimal.NewFromFloat(pipCount).Mul(Size(pair)).InexactFloat64()
}

// Value returns the account-currency value of one pip for lots, given the
// rate converting the quote currency into the account currency.
func Value(pair string, lots, quoteRate float64) float64 {
	return decimal.NewFromInt(ContractSize(pair)).
		Mul(Size(pair)).
		Mul(decimal.NewFromFloat(lots)).
		Mul(decimal.NewFromFloat(quoteRate)).
		InexactFloat64()
}

// PriceFunc returns the latest price of a symbol.
type PriceFunc func(pair string) (float64, error)

// QuoteRate returns how many units of account currency one unit of the pair's
// quote currency is worth. It looks up the direct or inverse symbol through price.
func QuoteRate(pair, account string, price PriceFunc) (float64, error) {
	_, quote, err := Split(pair)
	if err != nil {
		return 0, err
	}
	account = strings.ToUpper(account)
	if quote == account {
		return 1, nil
	}
	if p, err := price(quote + account); err == nil && p > 0 {
		return p, nil
	}
	p, err := price(account + quote)
	if err != nil {
		return 0, fmt.Errorf("rate %s/%s: %w", quote, account, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("rate %s/%s: non-positive price %v", quote, account, p)
	}
	return decimal.NewFromInt(1).Div(decimal.NewFromFloat(p)).InexactFloat64(), nil
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
