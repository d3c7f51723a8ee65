package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/models"
)

// Retention decides which recorded actions still block a repeat. The zero
// value is the current UTC calendar day.
type Retention struct {
	Rolling time.Duration
}

// ParseRetention accepts "day" (or empty) and "rolling:<duration>", e.g. rolling:24h.
func ParseRetention(s string) (Retention, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == "" || s == "day" || s == "calendar_day":
		return Retention{}, nil
	case strings.HasPrefix(s, "rolling:"):
		d, err := time.ParseDuration(strings.TrimPrefix(s, "rolling:"))
		if err != nil || d <= 0 {
			return Retention{}, fmt.Errorf("invalid rolling retention %q", s)
		}
		return Retention{Rolling: d}, nil
	default:
		return Retention{}, fmt.Errorf("unknown retention policy %q", s)
	}
}

// Since is the start of the window that ends at now.
func (r Retention) Since(now time.Time) time.Time {
	now = now.UTC()
	if r.Rolling > 0 {
		return now.Add(-r.Rolling)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r Retention) Covers(ts, now time.Time) bool {
	return !ts.Before(r.Since(now))
}

func (r Retention) String() string {
	if r.Rolling > 0 {
		return "rolling:" + r.Rolling.String()
	}
	return "day"
}

// Ledger is the set of actions already executed inside the retention window,
// backed by an append-only store. A key is added to the set only after the
// store has accepted it.
type Ledger struct {
	store     Store
	retention Retention
	now       func() time.Time
	logger    *zap.Logger

	mu   sync.RWMutex
	keys map[string]time.Time
}

// OpenLedger loads the snapshot of keys inside the retention window. Rows
// with unparsable timestamps are dropped.
func OpenLedger(ctx context.Context, store Store, retention Retention, now func() time.Time, logger *zap.Logger) (*Ledger, error) {
	if now == nil {
		now = time.Now
	}
	l := &Ledger{
		store:     store,
		retention: retention,
		now:       now,
		logger:    logger,
		keys:      make(map[string]time.Time),
	}

	t := now()
	entries, err := store.Load(ctx, retention.Since(t))
	if err != nil {
		return nil, fmt.Errorf("error loading ledger: %w", err)
	}
	dropped := 0
	for _, e := range entries {
		ts, ok := ParseTimestamp(e.Timestamp)
		if !ok {
			dropped++
			logger.Warn("Dropping ledger entry with unparsable timestamp",
				zap.String("action_key", e.Key), zap.String("timestamp", e.Timestamp))
			continue
		}
		if !retention.Covers(ts, t) {
			continue
		}
		if prev, ok := l.keys[e.Key]; !ok || ts.After(prev) {
			l.keys[e.Key] = ts
		}
	}

	logger.Info("Ledger loaded",
		zap.Int("keys", len(l.keys)),
		zap.Int("rows", len(entries)),
		zap.Int("dropped", dropped),
		zap.String("retention", retention.String()))
	return l, nil
}

// Contains reports whether key was recorded inside the retention window.
func (l *Ledger) Contains(key models.ActionKey) bool {
	l.mu.RLock()
	ts, ok := l.keys[key.String()]
	l.mu.RUnlock()
	return ok && l.retention.Covers(ts, l.now())
}

// Record appends key to the store and then adds it to the in-memory set.
// Writes are serialized; a failed append leaves the set unchanged.
func (l *Ledger) Record(ctx context.Context, key models.ActionKey, ts time.Time, meta map[string]string) error {
	entry := models.LedgerEntry{Key: key.String(), Timestamp: ts.UTC(), Metadata: maps.Clone(meta)}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("error recording %s: %w", entry.Key, err)
	}
	l.keys[entry.Key] = entry.Timestamp
	return nil
}

// Keys lists the keys currently inside the retention window, sorted.
func (l *Ledger) Keys() []string {
	now := l.now()
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.keys))
	for k, ts := range l.keys {
		if l.retention.Covers(ts, now) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (l *Ledger) Retention() Retention { return l.retention }

func (l *Ledger) Close() error {
	return l.store.Close()
}
