package models

// Requests for the regime and analysis HTTP endpoints. Defined in domain for
// consistency and reuse.
//
// Classify requests deliberately do not constrain the timeframe: an unsupported
// timeframe degrades to a noise classification instead of a validation error.

type ClassifyRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"5m"`
	ConfigID  *int64 `query:"config_id" json:"config_id"`
	AsOf      string `query:"as_of" json:"as_of"` // RFC3339 or unix ms; empty = now
}

type ClassifyBatchRequest struct {
	Symbols   []string `json:"symbols" validate:"required,min=1,max=100,dive,required"`
	Timeframe string   `json:"timeframe" default:"5m"`
	ConfigID  *int64   `json:"config_id"`
	AsOf      string   `json:"as_of"`
}

// ConfigUpdateRequest carries the target config id plus the merge-patch body.
type ConfigUpdateRequest struct {
	ID int64 `param:"id" json:"-" validate:"required,gt=0"`
	ThresholdPatch
}

type AnalyzeRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required"`
	Metric    string `query:"metric" json:"metric" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"5m" validate:"oneof=1m 3m 5m 15m 30m 1h 4h 1d"`
	Days      int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=90"`
}
