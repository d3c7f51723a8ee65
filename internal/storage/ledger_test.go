package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/engagebot/internal/models"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

var noon = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestLedger_TodayOnlyByDefault(t *testing.T) {
	store := NewMemoryStore(
		RawEntry{Key: "like_acct1_12345", Timestamp: "2026-10-15T08:00:00Z"},
		RawEntry{Key: "like_acct1_999", Timestamp: "2026-10-14T23:59:59Z"},
		RawEntry{Key: "like_acct1_777", Timestamp: "not a time"},
		RawEntry{Key: "retweet_acct1_555", Timestamp: "2026-10-15T01:02:03.123456"},
	)
	l, err := OpenLedger(context.Background(), store, Retention{}, fixedClock(noon), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, l.Contains(models.NewActionKey(models.ActionLike, "acct1", "12345")))
	assert.True(t, l.Contains(models.NewActionKey(models.ActionRetweet, "acct1", "555")))
	assert.False(t, l.Contains(models.NewActionKey(models.ActionLike, "acct1", "999")))
	assert.False(t, l.Contains(models.NewActionKey(models.ActionLike, "acct1", "777")))
	assert.False(t, l.Contains(models.NewActionKey(models.ActionRetweet, "acct1", "12345")))
	assert.Equal(t, []string{"like_acct1_12345", "retweet_acct1_555"}, l.Keys())
}

func TestLedger_RollingWindow(t *testing.T) {
	store := NewMemoryStore(
		RawEntry{Key: "like_a_1", Timestamp: "2026-10-14T13:00:00Z"},
		RawEntry{Key: "like_a_2", Timestamp: "2026-10-14T11:00:00Z"},
	)
	l, err := OpenLedger(context.Background(), store, Retention{Rolling: 24 * time.Hour}, fixedClock(noon), zap.NewNop())
	require.NoError(t, err)

	assert.True(t, l.Contains(models.NewActionKey(models.ActionLike, "a", "1")))
	assert.False(t, l.Contains(models.NewActionKey(models.ActionLike, "a", "2")))
}

func TestLedger_WindowMovesWithClock(t *testing.T) {
	now := noon
	clock := func() time.Time { return now }
	l, err := OpenLedger(context.Background(), NewMemoryStore(), Retention{}, clock, zap.NewNop())
	require.NoError(t, err)

	key := models.NewActionKey(models.ActionLike, "acct1", "1")
	require.NoError(t, l.Record(context.Background(), key, now, nil))
	assert.True(t, l.Contains(key))

	now = now.Add(13 * time.Hour)
	assert.False(t, l.Contains(key), "a new UTC day resets the window")
}

func TestParseRetention(t *testing.T) {
	r, err := ParseRetention("")
	require.NoError(t, err)
	assert.Equal(t, Retention{}, r)

	r, err = ParseRetention("rolling:36h")
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, r.Rolling)
	assert.Equal(t, "rolling:36h0m0s", r.String())

	_, err = ParseRetention("rolling:soon")
	assert.Error(t, err)
	_, err = ParseRetention("weekly")
	assert.Error(t, err)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Append(context.Context, models.LedgerEntry) error {
	return errors.New("disk full")
}

func TestLedger_FailedWriteDoesNotMarkKey(t *testing.T) {
	l, err := OpenLedger(context.Background(), failingStore{NewMemoryStore()}, Retention{}, fixedClock(noon), zap.NewNop())
	require.NoError(t, err)

	key := models.NewActionKey(models.ActionLike, "acct1", "1")
	err = l.Record(context.Background(), key, noon, nil)
	require.ErrorContains(t, err, "disk full")
	assert.False(t, l.Contains(key))
}

func TestLedger_RecordThenContainsAcrossRestart(t *testing.T) {
	path := t.TempDir() + "/ledger.csv"
	store, err := OpenCSVStore(path)
	require.NoError(t, err)
	l, err := OpenLedger(context.Background(), store, Retention{}, fixedClock(noon), zap.NewNop())
	require.NoError(t, err)

	key := models.NewActionKey(models.ActionLike, "acct1", "12345")
	require.NoError(t, l.Record(context.Background(), key, noon, map[string]string{"feature": "likes"}))
	require.NoError(t, l.Close())

	store, err = OpenCSVStore(path)
	require.NoError(t, err)
	reopened, err := OpenLedger(context.Background(), store, Retention{}, fixedClock(noon.Add(time.Hour)), zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Contains(key))
}

func TestLedger_ConcurrentRecords(t *testing.T) {
	path := t.TempDir() + "/ledger.csv"
	store, err := OpenCSVStore(path)
	require.NoError(t, err)
	l, err := OpenLedger(context.Background(), store, Retention{}, fixedClock(noon), zap.NewNop())
	require.NoError(t, err)

	accounts := []string{"acct1", "acct2"}
	const perAccount = 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, acct := range accounts {
		wg.Add(1)
		go func(acct string) {
			defer wg.Done()
			<-start
			for i := 0; i < perAccount; i++ {
				key := models.NewActionKey(models.ActionLike, acct, strconv.Itoa(i))
				assert.NoError(t, l.Record(context.Background(), key, noon, map[string]string{"account": acct}))
			}
		}(acct)
	}
	close(start)
	wg.Wait()
	require.NoError(t, l.Close())

	reader, err := OpenCSVStore(path)
	require.NoError(t, err)
	defer reader.Close()
	entries, err := reader.Load(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, reader.BadRows())
	require.Len(t, entries, len(accounts)*perAccount)
	for _, e := range entries {
		ts, ok := ParseTimestamp(e.Timestamp)
		require.True(t, ok, e.Timestamp)
		assert.True(t, ts.Equal(noon))
		assert.Contains(t, e.Key, "_"+e.Metadata["account"]+"_")
	}
}
