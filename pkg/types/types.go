// Package types defines the core data structures shared across the coordinator:
// the index Record and its tombstone states, and the static process configuration.
package types

import "time"

// Deleted is the tri-state tombstone of a Record.
type Deleted int

const (
	// Live means the object is present and reads should succeed.
	Live Deleted = iota
	// Soft means the object has been unlinked: logically gone but the volumes
	// may still hold the bytes, and it still shows up in an "unlinked" listing.
	Soft
	// Hard means fully purged. A Hard record must never be persisted to the
	// index — reaching Hard means deleting the index row instead.
	Hard
)

func (d Deleted) String() string {
	switch d {
	case Live:
		return "LIVE"
	case Soft:
		return "SOFT"
	case Hard:
		return "HARD"
	default:
		return "UNKNOWN"
	}
}

// Record is the value stored at a key in the index.
type Record struct {
	// Volumes is the ordered list of volume ids ("host:port") holding this
	// key, in the order the placement engine chose them at write time.
	Volumes []string

	// Hash is the 32-hex-character MD5 of the object content, empty if the
	// record only carries a tombstone.
	Hash string

	// Deleted is the tombstone state.
	Deleted Deleted
}

// Config is the coordinator's static, process-lifetime configuration.
type Config struct {
	Volumes         []string      // ordered set of volume ids
	Replicas        int           // N, replica fanout per key
	Subvolumes      int           // S, sub-volume partitions per volume
	VolTimeout      time.Duration // HEAD probe timeout
	Fallback        string        // optional fallback URL prefix
	IndexPath       string        // bbolt database path
	StagingDir      string        // multipart staging directory
	Port            string        // HTTP listen address, e.g. ":3000"
	MetricsAddr     string        // optional separate /metrics listen address
	ShutdownTimeout time.Duration // bound on graceful drain
	LogLevel        string
	LogJSON         bool
}
