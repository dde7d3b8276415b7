package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/model"
)

// utf8BOM marks the file as UTF-8 for spreadsheet tools.
const utf8BOM = "\xef\xbb\xbf"

const csvTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"date", "open", "close", "high", "low", "change", "change_rate"}

// CSVStore appends quotes to a CSV file, one row per date. A new file gets a
// UTF-8 BOM and a header row; an existing file is appended to, which is what
// lets an interrupted crawl resume.
type CSVStore struct {
	path string
	file *os.File
	w    *csv.Writer
}

// OpenCSV opens path for appending, creating parent directories and the
// header as needed.
func OpenCSV(path string) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	fi, err := os.Stat(path)
	fresh := errors.Is(err, fs.ErrNotExist) || (err == nil && fi.Size() == 0)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	s := &CSVStore{path: path, file: f, w: csv.NewWriter(f)}
	if fresh {
		if _, err := f.WriteString(utf8BOM); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing BOM to %s: %w", path, err)
		}
		if err := s.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header to %s: %w", path, err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header to %s: %w", path, err)
		}
	}
	return s, nil
}

// Append writes one quote row and flushes it, so a crash loses at most the
// row in flight.
func (s *CSVStore) Append(_ context.Context, q model.Quote) error {
	row := []string{
		q.Date.Format(csvTimeLayout),
		formatFloat(q.Open),
		formatFloat(q.Close),
		formatFloat(q.High),
		formatFloat(q.Low),
		formatFloat(q.Change),
		formatFloat(q.ChangeRate),
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	return nil
}

// Dates reads the file back and reports which dates inside r already have a
// row. A missing file simply means nothing is persisted yet.
func (s *CSVStore) Dates(_ context.Context, r dates.Range) (map[time.Time]bool, error) {
	seen := make(map[time.Time]bool)

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	records, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		field := strings.TrimPrefix(rec[0], utf8BOM)
		if field == csvHeader[0] {
			continue
		}
		t, err := parseCSVDate(field)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.path, i+1, err)
		}
		if day := dates.DateOf(t); r.Contains(day) {
			seen[day] = true
		}
	}
	return seen, nil
}

// Close flushes buffered rows and closes the file.
func (s *CSVStore) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("flushing %s: %w", s.path, err)
	}
	return s.file.Close()
}

func parseCSVDate(field string) (time.Time, error) {
	for _, layout := range []string{csvTimeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, field); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q", field)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
