package models

// Requests for market HTTP endpoints.

type InstrumentRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=32"`
}

type TopRequest struct {
	N int `query:"n" json:"n" default:"5" validate:"gte=1,lte=100"`
}

type AlertsRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

type AnalyticsRequest struct {
	Window int `query:"window" json:"window" default:"100" validate:"gte=1,lte=5000"`
}

type QueryRequest struct {
	Question string `json:"question" validate:"required,max=1000"`
}
