// Package ledger persists per-stratum sampling statistics to an
// append-only CSV file. The file doubles as the resume journal: on
// startup, existing rows are replayed to fast-forward a run past the
// strata it already completed.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

var header = []string{"stratum_first", "stratum_last", "population", "sample"}

// Entry is one completed stratum: its size bounds, the population the
// search reported, and the number of items actually sampled.
type Entry struct {
	First      int
	Last       int
	Population int
	Sampled    int
}

// Ledger appends completed-stratum rows to a CSV file. Each Append is
// flushed and synced before returning, so a row on disk always means
// the stratum it records is durably done.
type Ledger struct {
	f *os.File
	w *csv.Writer
}

// Open opens or creates the ledger at path and returns the entries
// already recorded in it. A new file gets the header row written
// immediately; an existing file must start with the expected header.
func Open(path string) (*Ledger, []Entry, error) {
	entries, err := readEntries(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open statistics file: %w", err)
	}

	l := &Ledger{f: f, w: csv.NewWriter(f)}

	if entries == nil {
		// Fresh file: write the header before any data rows.
		if err := l.w.Write(header); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to write statistics header: %w", err)
		}
		l.w.Flush()
		if err := l.w.Error(); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to write statistics header: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to sync statistics file: %w", err)
		}
		return l, nil, nil
	}

	return l, entries, nil
}

// readEntries parses the existing ledger rows. It returns nil (not an
// empty slice) when the file does not exist, so Open can tell a fresh
// file from an existing one with zero completed strata.
func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open statistics file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	got, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("statistics file %s is empty, expected header %v", path, header)
		}
		return nil, fmt.Errorf("failed to read statistics header: %w", err)
	}
	for i, col := range header {
		if got[i] != col {
			return nil, fmt.Errorf("statistics file %s has unexpected header %v, expected %v", path, got, header)
		}
	}

	entries := []Entry{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read statistics row: %w", err)
		}
		entry, err := parseEntry(record)
		if err != nil {
			return nil, fmt.Errorf("statistics file %s: %w", path, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(record []string) (Entry, error) {
	fields := make([]int, len(record))
	for i, raw := range record {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid %s value %q", header[i], raw)
		}
		fields[i] = v
	}
	return Entry{
		First:      fields[0],
		Last:       fields[1],
		Population: fields[2],
		Sampled:    fields[3],
	}, nil
}

// Append records a completed stratum. The row is flushed to the OS and
// fsynced before Append returns.
func (l *Ledger) Append(e Entry) error {
	record := []string{
		strconv.Itoa(e.First),
		strconv.Itoa(e.Last),
		strconv.Itoa(e.Population),
		strconv.Itoa(e.Sampled),
	}
	if err := l.w.Write(record); err != nil {
		return fmt.Errorf("failed to write statistics row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("failed to write statistics row: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync statistics file: %w", err)
	}
	return nil
}

// Path returns the file the ledger writes to.
func (l *Ledger) Path() string {
	return l.f.Name()
}

// Close flushes any buffered rows and closes the file.
func (l *Ledger) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return fmt.Errorf("failed to flush statistics file: %w", err)
	}
	return l.f.Close()
}
