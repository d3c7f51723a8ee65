package storage

import (
	"context"
	"time"

	"github.com/xaenox/engagebot/internal/models"
)

// Store is an append-only backend for ledger entries. Implementations must
// be safe for concurrent use.
type Store interface {
	// Load returns the entries recorded at or after since. Backends that
	// cannot filter may return older entries too.
	Load(ctx context.Context, since time.Time) ([]RawEntry, error)
	Append(ctx context.Context, entry models.LedgerEntry) error
	Close() error
}

// RawEntry is a stored row before its timestamp is interpreted.
type RawEntry struct {
	Key       string
	Timestamp string
	Metadata  map[string]string
}

// TimestampLayout is how timestamps are written.
const TimestampLayout = time.RFC3339Nano

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}
