package ws

import (
	"github.com/shopspring/decimal"

	"metals_go/internal/domain"
)

// Client -> server message types.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
)

// Server -> client message types.
const (
	msgPong        = "pong"
	msgPriceUpdate = "priceUpdate"
	msgError       = "error"
)

// clientMessage is the envelope for everything a subscriber sends.
type clientMessage struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments,omitempty"`
}

// priceChange describes one instrument whose price moved beyond the
// broadcast threshold since the last update.
type priceChange struct {
	Instrument    domain.Instrument `json:"instrument"`
	OldPrice      decimal.Decimal   `json:"oldPrice"`
	NewPrice      decimal.Decimal   `json:"newPrice"`
	ChangePercent decimal.Decimal   `json:"changePercent"`
	Direction     string            `json:"direction"` // "up" or "down"
}

// priceUpdate always carries the full quote map plus an explicit changes
// list, so clients never have to merge partial deltas.
type priceUpdate struct {
	Type      string                              `json:"type"`
	Data      map[domain.Instrument]*domain.Quote `json:"data"`
	Changes   []priceChange                       `json:"changes"`
	Timestamp int64                               `json:"timestamp"`
}

type pongMessage struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
