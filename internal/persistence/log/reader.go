package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ReadAudit decodes every audit file under dataDir in chronological order and calls fn per entry.
// A file whose last frame is unfinished (still being written, or cut short by a crash)
// yields the entries in its complete blocks.
func ReadAudit(dataDir string, fn func(AuditEntry) error) error {
	paths, err := filepath.Glob(filepath.Join(dataDir, "audit", "audit-*.jsonl.zst"))
	if err != nil {
		return err
	}
	sortAuditPaths(paths)
	for _, p := range paths {
		if err := readFile(p, fn); err != nil {
			return err
		}
	}
	return nil
}

// sortAuditPaths orders by hour stamp, then by the sequence suffix (none sorts first).
func sortAuditPaths(paths []string) {
	key := func(p string) (string, int) {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), "audit-"), ".jsonl.zst")
		hour, seq, ok := strings.Cut(name, ".")
		if !ok {
			return hour, 0
		}
		n, _ := strconv.Atoi(seq)
		return hour, n
	}
	sort.Slice(paths, func(i, j int) bool {
		hi, si := key(paths[i])
		hj, sj := key(paths[j])
		if hi != hj {
			return hi < hj
		}
		return si < sj
	})
}

func readFile(path string, fn func(AuditEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}
