package metalsdev

// latestResponse is the metals.dev batch payload: one call covers every
// metal in the requested currency.
type latestResponse struct {
	Status     string             `json:"status"`
	ErrMsg     string             `json:"error_message"`
	Currency   string             `json:"currency"`
	Unit       string             `json:"unit"`
	Metals     map[string]float64 `json:"metals"`
	Timestamps struct {
		Metal string `json:"metal"`
	} `json:"timestamps"`
}

// spotResponse is the single-metal payload with OHLC detail.
type spotResponse struct {
	Status    string `json:"status"`
	ErrMsg    string `json:"error_message"`
	Currency  string `json:"currency"`
	Metal     string `json:"metal"`
	Timestamp string `json:"timestamp"`
	Rate      struct {
		Price  float64  `json:"price"`
		Open   *float64 `json:"open"`
		High   *float64 `json:"high"`
		Low    *float64 `json:"low"`
		Close  *float64 `json:"close"`
		Change *float64 `json:"ch"`
		Pct    *float64 `json:"chp"`
	} `json:"rate"`
}
