package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/engagebot/internal/models"
)

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewPostgresStoreWithDB(db)

	ts := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs("like_acct1_1", ts, `{"feature":"likes"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	err = store.Append(context.Background(), models.LedgerEntry{
		Key: "like_acct1_1", Timestamp: ts, Metadata: map[string]string{"feature": "likes"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewPostgresStoreWithDB(db)
	defer store.Close()

	since := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"action_key", "recorded_at", "metadata"}).
		AddRow("like_acct1_1", since.Add(time.Hour), []byte(`{"feature":"likes"}`)).
		AddRow("retweet_acct1_2", since.Add(2*time.Hour), []byte(`{}`))
	mock.ExpectQuery("SELECT action_key, recorded_at, metadata FROM ledger_entries").
		WithArgs(since).
		WillReturnRows(rows)

	entries, err := store.Load(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RawEntry{
		Key: "like_acct1_1", Timestamp: "2026-10-15T01:00:00Z", Metadata: map[string]string{"feature": "likes"},
	}, entries[0])
	assert.Equal(t, "retweet_acct1_2", entries[1].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewPostgresStoreWithDB(db)
	defer store.Close()

	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnError(assert.AnError)

	err = store.Append(context.Background(), models.LedgerEntry{Key: "k", Timestamp: time.Now()})
	assert.ErrorIs(t, err, assert.AnError)
}
