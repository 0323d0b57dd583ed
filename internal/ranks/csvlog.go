package ranks

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// CSVLog appends "timestamp,username,ehb" rows to a file.
type CSVLog struct {
	mu   sync.Mutex
	path string
}

func NewCSVLog(path string) *CSVLog {
	return &CSVLog{path: path}
}

func (l *CSVLog) Path() string { return l.path }

func (l *CSVLog) Append(at time.Time, rows ...Record) error {
	if len(rows) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	ts := at.Format(csvTimeLayout)
	for _, r := range rows {
		if err := w.Write([]string{ts, r.Username, strconv.FormatFloat(r.LastEHB, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
