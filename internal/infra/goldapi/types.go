package goldapi

// liveResponse is the GoldAPI quote payload, shared by the live and
// historical endpoints. Field names follow the upstream wire format; no code
// outside this package sees them.
type liveResponse struct {
	Timestamp      int64    `json:"timestamp"`
	Metal          string   `json:"metal"`
	Currency       string   `json:"currency"`
	Exchange       string   `json:"exchange"`
	Price          float64  `json:"price"`
	OpenPrice      *float64 `json:"open_price"`
	HighPrice      *float64 `json:"high_price"`
	LowPrice       *float64 `json:"low_price"`
	PrevClosePrice *float64 `json:"prev_close_price"`
	Ch             *float64 `json:"ch"`  // absolute change
	Chp            *float64 `json:"chp"` // percent change
	PriceGram24K   *float64 `json:"price_gram_24k"`
	PriceGram22K   *float64 `json:"price_gram_22k"`
	PriceGram18K   *float64 `json:"price_gram_18k"`
	Error          string   `json:"error"`
}
