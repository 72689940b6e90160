package sync

import (
	"fmt"
	"time"
)

// Direction names the authoritative side of an operation.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
	DirectionCompare  Direction = "compare"
	DirectionTest     Direction = "test"
	DirectionStatus   Direction = "status"
)

// Result accounts for one engine operation. Counts cover work done before
// a fatal error too, since completed transfers are never rolled back.
type Result struct {
	OperationID string    `json:"operation_id" yaml:"operation_id"`
	Direction   Direction `json:"direction" yaml:"direction"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`

	Collections        int `json:"collections" yaml:"collections"`
	CollectionsCreated int `json:"collections_created" yaml:"collections_created"`
	CollectionsDeleted int `json:"collections_deleted" yaml:"collections_deleted"`
	CollectionsSkipped int `json:"collections_skipped" yaml:"collections_skipped"`

	FilesConsidered  int   `json:"files_considered" yaml:"files_considered"`
	FilesTransferred int   `json:"files_transferred" yaml:"files_transferred"`
	FilesSkipped     int   `json:"files_skipped" yaml:"files_skipped"`
	FilesDeleted     int   `json:"files_deleted" yaml:"files_deleted"`
	FilesFailed      int   `json:"files_failed" yaml:"files_failed"`
	BytesTransferred int64 `json:"bytes_transferred" yaml:"bytes_transferred"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// OK reports whether every file and collection was handled.
func (r *Result) OK() bool {
	return r.FilesFailed == 0 && r.CollectionsSkipped == 0
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: %d collections, %d/%d files transferred, %d skipped, %d deleted, %d failed in %s",
		r.Direction, r.Collections, r.FilesTransferred, r.FilesConsidered,
		r.FilesSkipped, r.FilesDeleted, r.FilesFailed, r.Duration.Round(time.Millisecond))
}

// CollectionDifference lists the filenames present on only one side of a
// collection that exists on both.
type CollectionDifference struct {
	Name         string   `json:"name" yaml:"name"`
	OnlyInLocal  []string `json:"only_in_local" yaml:"only_in_local"`
	OnlyInRemote []string `json:"only_in_remote" yaml:"only_in_remote"`
}

// ComparisonResult is a read-only snapshot of how the two sides differ.
// Collection names are sanitized names, in natural order.
type ComparisonResult struct {
	OnlyLocal   []string               `json:"only_local" yaml:"only_local"`
	OnlyRemote  []string               `json:"only_remote" yaml:"only_remote"`
	Different   []CollectionDifference `json:"different" yaml:"different"`
	Identical   []string               `json:"identical" yaml:"identical"`
	RemoteFiles map[string][]string    `json:"remote_files" yaml:"remote_files"`
	// Unreadable remote collections were compared as empty.
	Unreadable []string `json:"unreadable,omitempty" yaml:"unreadable,omitempty"`
}

// InSync reports whether both sides hold the same collections and files.
func (c *ComparisonResult) InSync() bool {
	return len(c.OnlyLocal) == 0 && len(c.OnlyRemote) == 0 && len(c.Different) == 0 && len(c.Unreadable) == 0
}

// RemoteStatus summarises the remote tree.
type RemoteStatus struct {
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
	Collections  int       `json:"collections" yaml:"collections"`
	Description  string    `json:"description" yaml:"description"`
}
