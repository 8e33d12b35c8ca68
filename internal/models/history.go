package models

import "time"

// HistoryQuery is the data source query of one grid page.
type HistoryQuery struct {
	Start  time.Time
	End    time.Time
	Order  string
	Offset int
	Limit  int
	Filter string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
