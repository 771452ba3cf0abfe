package models

// HTTP request DTOs. Query and path values are bound by echo, unset fields
// are filled from `default` and then checked against `validate`.

type TicksRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	From   string `query:"from"`
	To     string `query:"to"`
	Limit  int    `query:"limit" default:"500" validate:"min=1,max=10000"`
}

type CandlesRequest struct {
	Symbol     string `query:"symbol" validate:"required"`
	Timeframe  string `query:"timeframe" default:"1m" validate:"oneof=1s 1m 5m 15m 1h"`
	From       string `query:"from"`
	To         string `query:"to"`
	Limit      int    `query:"limit" default:"500" validate:"min=1,max=10000"`
	ClosedOnly bool   `query:"closed_only"`
}

type StatsRequest struct {
	Symbol string `query:"symbol"`
}

type ClearTicksRequest struct {
	Symbol string `query:"symbol"`
}

// PairRequest selects one pair computation. Empty fields take the engine
// defaults.
type PairRequest struct {
	Pair      string `query:"pair" validate:"required"`
	Timeframe string `query:"timeframe" validate:"omitempty,oneof=1s 1m 5m 15m 1h"`
	Window    int    `query:"window" validate:"omitempty,min=2,max=5000"`
	Estimator string `query:"estimator"`
}

type BatchPairsRequest struct {
	Pairs     string `query:"pairs" validate:"required"`
	Timeframe string `query:"timeframe" validate:"omitempty,oneof=1s 1m 5m 15m 1h"`
	Window    int    `query:"window" validate:"omitempty,min=2,max=5000"`
	Estimator string `query:"estimator"`
}

type CreateAlertRequest struct {
	Metric    string   `json:"metric" validate:"required"`
	Pair      string   `json:"pair" validate:"required"`
	Operator  string   `json:"operator" validate:"required"`
	Threshold *float64 `json:"threshold" validate:"required"`
	Timeframe string   `json:"timeframe" validate:"omitempty,oneof=1s 1m 5m 15m 1h"`
	Window    int      `json:"window" validate:"omitempty,min=2,max=5000"`
	Estimator string   `json:"estimator"`
}

type UpdateAlertRequest struct {
	ID     string `param:"id" json:"-" validate:"required"`
	Active *bool  `json:"active" validate:"required"`
}

type TriggeredRequest struct {
	Limit int `query:"limit" default:"100" validate:"min=1,max=10000"`
}
