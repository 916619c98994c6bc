package audit

import "time"

// TimelineFilters holds the timeline filters.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Query is the storage-level form of the filters. Limit 0 means unbounded.
type Query struct {
	From       time.Time
	To         time.Time
	Actor      string
	Entity     string
	EntityID   string
	Action     string
	Offset     int
	Limit      int
	Descending bool
}

// TimelineRow is one audit record.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Number   string         `json:"number,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}
