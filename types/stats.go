package types

import "time"

// RecordStats is a point-in-time summary of the capture table.
type RecordStats struct {
	Total   int `json:"total"`
	Located int `json:"located"`
	Owners  int `json:"owners"`
}

type CollectionStats struct {
	LastUpdate     time.Time   `json:"last_update"`
	TotalSnapshots int64       `json:"total_snapshots"`
	Records        RecordStats `json:"records"`
	ActiveSessions int         `json:"active_sessions"`
	RecordsAdded   int64       `json:"records_added"`
	StartTime      time.Time   `json:"start_time"`
}
