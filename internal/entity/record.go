package entity

import "time"

const (
	StatusCompleted = "completed"
)

// Record represents a completed download stored in the ledger.
// There is at most one record per source URL; re-fetching the same
// URL replaces the record and refreshes the date.
type Record struct {
	URL          string    // Source URL, unique key
	Filename     string    // Decoded path relative to the download directory
	FullPath     string    // Absolute local path
	DownloadDate time.Time // Time of the last successful fetch
	FileSize     *int64    // Size in bytes, nil if the file was missing at record time
	Status       string
}
