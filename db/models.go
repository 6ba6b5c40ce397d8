package db

import "time"

// Setting is one stored record
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DBStats describes what the database holds
type DBStats struct {
	KeyCount    int64 `json:"keyCount"`
	ValueBytes  int64 `json:"valueBytes"`
	DBSizeBytes int64 `json:"dbSizeBytes"`
}
