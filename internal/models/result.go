package models

// Neighbor is a single neighbor of a query anchor, ordered by Rank.
type Neighbor struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
	Rank     int     `json:"rank"`
	Event *Event `json:"event,omitempty"`
}

// NeighborResponse is the response for a neighbor request.
type NeighborResponse struct {
	Query     NeighborQuery `json:"query"`
	Results   []*Neighbor   `json:"results"`
	Total     int           `json:"total"`
	QueryTime int64         `json:"query_time_ms"`
}

// CatalogHit is a text match in the event catalog.
type CatalogHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Event *Event  `json:"event,omitempty"`
}

// Status summarizes the service state.
type Status struct {
	Events         int    `json:"events"`
	IndexType      string `json:"index_type"`
	IndexedItems   int    `json:"indexed_items"`
	Registered     int    `json:"registered"`
	TreeCount      int    `json:"tree_count,omitempty"`
	MaxDepth       int    `json:"max_depth,omitempty"`
	Built          bool   `json:"built"`
	LastBuild      string `json:"last_build,omitempty"`
	LastBuildError string `json:"last_build_error,omitempty"`
	CatalogDocs    uint64 `json:"catalog_docs"`
	DiskUsage      int64  `json:"disk_usage_bytes"`
}
