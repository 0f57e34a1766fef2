// Package runlog archives finished planning runs as zstd-compressed JSON
// lines, one file per UTC hour.
package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"dronenav/internal/model"
)

// Entry is one archived run.
type Entry struct {
	RunID      string             `json:"runId"`
	ScenarioID string             `json:"scenarioId"`
	Algorithm  string             `json:"algorithm"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	DurationMs int64              `json:"durationMs"`
	Unassigned []int              `json:"unassigned,omitempty"`
	Stats      map[string]float64 `json:"stats,omitempty"`
	At         time.Time          `json:"at"`
}

func FromRun(r model.Run) Entry {
	e := Entry{
		RunID:      r.ID,
		ScenarioID: r.ScenarioID,
		Algorithm:  r.Algorithm,
		Status:     r.Status,
		Error:      r.Error,
		At:         r.CreatedAt,
	}
	if r.FinishedAt != nil {
		e.At = *r.FinishedAt
	}
	if r.Result != nil {
		e.DurationMs = r.Result.DurationMs
		e.Unassigned = r.Result.Unassigned
		e.Stats = r.Result.Stats
	}
	return e
}

type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v as one JSON line, rotating when the hour changes.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteRun archives r.
func (w *Writer) WriteRun(r model.Run) error { return w.Write(FromRun(r)) }

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	// reopening an hour appends a new zstd frame
	f, err := os.OpenFile(w.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *Writer) PathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}
