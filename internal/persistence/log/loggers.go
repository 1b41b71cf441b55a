package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"claimstore.ai/internal/store"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named <prefix>-YYYY-MM-DD-HH.jsonl.zst.
// Every Write is flushed to disk as a complete zstd block.
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
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Emit a complete block so the line is readable before the file is closed.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := w.createForHour(hour)
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

// createForHour opens a new file for hour. An existing file for the same hour may end
// in an unfinished frame (the process was killed), so it is never appended to;
// later files get a sequence suffix: <prefix>-<hour>.<n>.jsonl.zst.
func (w *JSONLZstdWriter) createForHour(hour string) (*os.File, error) {
	for seq := 0; ; seq++ {
		f, err := os.OpenFile(w.pathForHour(hour, seq), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return f, err
	}
}

func (w *JSONLZstdWriter) pathForHour(hour string, seq int) string {
	if seq == 0 {
		return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	}
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.%d.jsonl.zst", w.prefix, hour, seq))
}

// AuditEntry is one line of the purchase audit log. Exactly one of Purchase or PriceChange is set.
type AuditEntry struct {
	Kind        string             `json:"kind"`
	Purchase    *store.Receipt     `json:"purchase,omitempty"`
	PriceChange *store.PriceChange `json:"price_change,omitempty"`
}

const (
	KindPurchase    = "PURCHASE"
	KindPriceChange = "PRICE_CHANGE"
)

// AuditLogger writes purchase attempts and price changes under <dataDir>/audit. It implements store.Recorder.
type AuditLogger struct {
	w     *JSONLZstdWriter
	onErr func(error)
}

func NewAuditLogger(dataDir string, onErr func(error)) *AuditLogger {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit"), onErr: onErr}
}

func (l *AuditLogger) RecordPurchase(r store.Receipt) {
	if err := l.w.Write(AuditEntry{Kind: KindPurchase, Purchase: &r}); err != nil {
		l.onErr(err)
	}
}

func (l *AuditLogger) RecordPriceChange(c store.PriceChange) {
	if err := l.w.Write(AuditEntry{Kind: KindPriceChange, PriceChange: &c}); err != nil {
		l.onErr(err)
	}
}

func (l *AuditLogger) Close() error { return l.w.Close() }
