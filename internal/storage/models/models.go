package models

import "time"

type QueryStatus string

const (
	StatusAnswered     QueryStatus = "answered"
	StatusUnanswerable QueryStatus = "unanswerable"
	StatusFailed       QueryStatus = "failed"
)

// QueryRecord is one question that went through the pipeline.
type QueryRecord struct {
	ID        string      `json:"id"`
	Question  string      `json:"question"`
	SQL       string      `json:"sql"`
	Answer    string      `json:"answer"`
	ChartKind string      `json:"chart_kind"`
	RowCount  int         `json:"row_count"`
	Status    QueryStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	LatencyMS int64       `json:"latency_ms"`
	CreatedAt time.Time   `json:"created_at"`
}

type Feedback struct {
	ID        int64     `json:"id"`
	QueryID   string    `json:"query_id"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FeedbackStats struct {
	Total   int `json:"total"`
	Helpful int `json:"helpful"`
}
