package persistence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/wastesim/internal/engine"
)

// JSONLZstdWriter writes one JSON value per line into a zstd-compressed file.
type JSONLZstdWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// CreateJSONLZstd creates (or truncates) path.
func CreateJSONLZstd(path string) (*JSONLZstdWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONLZstdWriter{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

// Write appends v as one line.
func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("jsonl writer closed")
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes and closes the file.
func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	errFlush := w.w.Flush()
	errEnc := w.enc.Close()
	errFile := w.f.Close()
	w.w, w.enc, w.f = nil, nil, nil
	return errors.Join(errFlush, errEnc, errFile)
}

// ArchivePath returns where a run's journal archive lives under dir.
func ArchivePath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("journal-%s.jsonl.zst", runID))
}

// ArchiveJournal writes every committed journal record to dir and
// returns the archive path.
func ArchiveJournal(dir, runID string, j *engine.Journal) (string, error) {
	path := ArchivePath(dir, runID)
	w, err := CreateJSONLZstd(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	for _, e := range j.Events() {
		if err := w.Write(e); err != nil {
			_ = w.Close()
			return "", fmt.Errorf("write archive: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return path, nil
}

// ReadArchive decodes a journal archive.
func ReadArchive(path string) ([]engine.Event, error) {
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

	var events []engine.Event
	jd := json.NewDecoder(dec)
	for {
		var e engine.Event
		if err := jd.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("decode archive: %w", err)
		}
		events = append(events, e)
	}
}
