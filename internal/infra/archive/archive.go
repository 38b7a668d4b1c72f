// Package archive keeps a compressed, hourly-rotated JSONL copy of every
// economy notification. Files are named <prefix>-YYYY-MM-DD-HH.jsonl.zst.
package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/platform/metrics"
)

const hourLayout = "2006-01-02-15"

// JSONLZstdWriter appends JSON lines to a zstd stream, starting a new file
// every UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewJSONLZstdWriter creates a writer rooted at baseDir. Nothing is opened
// until the first Write.
func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format(hourLayout)
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

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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

func (w *JSONLZstdWriter) closeLocked() error {
	var errs []error
	if w.w != nil {
		if err := w.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush archive: %w", err))
		}
	}
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close encoder: %w", err))
		}
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive file: %w", err))
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return errors.Join(errs...)
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// EventArchive writes economy notifications to the archive.
// It satisfies events.EventPersister.
type EventArchive struct {
	w       *JSONLZstdWriter
	metrics *metrics.Collector
}

// NewEventArchive archives into dir. m may be nil.
func NewEventArchive(dir string, m *metrics.Collector) *EventArchive {
	return &EventArchive{w: NewJSONLZstdWriter(dir, "economy"), metrics: m}
}

func (a *EventArchive) Append(event events.GameEvent) error {
	err := a.w.Write(event)
	if a.metrics != nil {
		a.metrics.RecordEventWrite(err)
	}
	return err
}

func (a *EventArchive) Close() error { return a.w.Close() }

// ReadFile decodes every event in one archive file.
func ReadFile(path string) ([]events.GameEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []events.GameEvent
	jd := json.NewDecoder(dec)
	for {
		var e events.GameEvent
		if err := jd.Decode(&e); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
}

// Files lists archive files in dir, oldest first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "economy-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	return matches, nil // Glob sorts; the hour stamp sorts chronologically
}
