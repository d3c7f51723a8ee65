package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/xaenox/engagebot/internal/models"
)

const (
	keyColumn       = "action_key"
	timestampColumn = "timestamp"
)

var baseHeader = []string{keyColumn, timestampColumn}

// CSVStore is an append-only CSV log. The first row is a header; when an
// entry carries a metadata key the current header lacks, a wider header row
// is appended before it. Existing rows are never rewritten, so readers bind
// columns to the most recent header row and accept rows shorter than it.
type CSVStore struct {
	path string

	mu      sync.Mutex
	file    *os.File
	header  []string
	badRows int
}

func OpenCSVStore(path string) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating ledger directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening ledger file: %w", err)
	}

	s := &CSVStore{path: path, file: f}
	if err := s.terminateLastRow(); err != nil {
		f.Close()
		return nil, err
	}
	bad, err := s.scan(func(RawEntry) {})
	if err != nil {
		f.Close()
		return nil, err
	}
	s.badRows = bad
	return s, nil
}

// terminateLastRow adds the missing newline left by an interrupted write so
// the next row does not merge into it.
func (s *CSVStore) terminateLastRow() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("error reading ledger file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("error reading ledger file: %w", err)
	}
	if last[0] != '\n' {
		if _, err := s.file.Write([]byte("\n")); err != nil {
			return fmt.Errorf("error repairing ledger file: %w", err)
		}
	}
	return nil
}

// scan reads the whole file, calling fn for every well-formed data row, and
// leaves s.header set to the last header row seen. Callers hold s.mu or own s.
func (s *CSVStore) scan(fn func(RawEntry)) (bad int, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("error opening ledger file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var header []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			bad++
			continue
		}
		if err != nil {
			return bad, fmt.Errorf("error reading ledger file: %w", err)
		}

		if row[0] == keyColumn {
			header = slices.Clone(row)
			continue
		}
		cols := header
		if cols == nil {
			cols = baseHeader
		}
		tsIdx := slices.Index(cols, timestampColumn)
		if row[0] == "" || tsIdx < 0 || len(row) <= tsIdx {
			bad++
			continue
		}

		e := RawEntry{Key: row[0], Timestamp: row[tsIdx]}
		for i := 1; i < len(row) && i < len(cols); i++ {
			if i == tsIdx || row[i] == "" {
				continue
			}
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata[cols[i]] = row[i]
		}
		fn(e)
	}
	s.header = header
	return bad, nil
}

// Load returns every data row. since is not applied; the ledger filters.
func (s *CSVStore) Load(ctx context.Context, since time.Time) ([]RawEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []RawEntry
	bad, err := s.scan(func(e RawEntry) { entries = append(entries, e) })
	s.badRows = bad
	if err != nil {
		return entries, err
	}
	return entries, nil
}

// BadRows reports how many rows the last scan of the file skipped.
func (s *CSVStore) BadRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badRows
}

func (s *CSVStore) Append(ctx context.Context, entry models.LedgerEntry) error {
	if entry.Key == "" {
		return errors.New("ledger entry has no key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	header := s.header
	if header == nil {
		header = baseHeader
	}
	var added []string
	for k := range entry.Metadata {
		if !slices.Contains(header, k) {
			added = append(added, k)
		}
	}
	slices.Sort(added)

	w := csv.NewWriter(s.file)
	if s.header == nil || len(added) > 0 {
		header = append(slices.Clone(header), added...)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("error writing ledger header: %w", err)
		}
	}

	row := make([]string, len(header))
	row[0] = entry.Key
	for i, col := range header[1:] {
		if col == timestampColumn {
			row[i+1] = FormatTimestamp(entry.Timestamp)
			continue
		}
		row[i+1] = entry.Metadata[col]
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("error writing ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("error flushing ledger row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("error syncing ledger file: %w", err)
	}
	s.header = header
	return nil
}

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
