// Package bufferfile provides the local append-only spool (§4.5) that
// TelemetryClient appends every write to, whether or not the HTTP call
// succeeded, and that SyncWorker drains by replaying each entry. Entries are replayable HTTP request
// bodies, one per line, rotated into a new file daily.
package bufferfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/telemetry-run/telemetryd/internal/telemetry"
)

const (
	filePrefix     = "events_"
	fileSuffix     = ".ndjson"
	dateLayout     = "20060102"
	rejectedSuffix = ".rejected"
)

// BufferFile is the append-only spool directory.
type BufferFile struct {
	dir string
}

// Open returns a BufferFile rooted at dir, creating dir if it does not
// exist.
func Open(dir string) (*BufferFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}

	return &BufferFile{dir: dir}, nil
}

// line is the on-disk NDJSON record: a tag identifying which HTTP call to
// replay, and the exact request body to replay it with.
type line struct {
	Tag  telemetry.BufferEntryTag `json:"tag"`
	Body json.RawMessage          `json:"body"`
}

// Append writes entry to today's spool file: open -> seek-end -> write ->
// fsync -> close (§4.5), serialized against other writers on this host by
// an advisory file lock.
func (b *BufferFile) Append(entry telemetry.BufferEntry) error {
	path := b.pathForDate(time.Now())

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock buffer file: %w", err)
	}

	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open buffer file: %w", err)
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		return fmt.Errorf("failed to seek to end of buffer file: %w", err)
	}

	encoded, err := json.Marshal(line{Tag: entry.Tag, Body: entry.Body})
	if err != nil {
		return fmt.Errorf("failed to encode buffer entry: %w", err)
	}

	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("failed to write buffer entry: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to fsync buffer file: %w", err)
	}

	return nil
}

// ReplayFunc attempts to replay a single entry, reporting whether it
// succeeded. A successfully-replayed entry is compacted out of the file; a
// failed one is kept for the next drain pass.
type ReplayFunc func(entry telemetry.BufferEntry) (bool, error)

// Drain replays every entry across all spool files, oldest file first,
// forward-only within each file (§4.5). Successfully-replayed entries are
// removed by rewriting the file without them; lines that fail to parse as
// JSON are quarantined to a sibling ".rejected" file instead of blocking
// replay of the rest.
func (b *BufferFile) Drain(replay ReplayFunc) error {
	files, err := b.spoolFiles()
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := b.drainFile(path, replay); err != nil {
			return fmt.Errorf("failed to drain %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

func (b *BufferFile) drainFile(path string, replay ReplayFunc) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock buffer file: %w", err)
	}

	defer func() { _ = lock.Unlock() }()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read buffer file: %w", err)
	}

	var (
		remaining [][]byte
		rejected  [][]byte
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var decoded line

		if err := json.Unmarshal(raw, &decoded); err != nil {
			rejected = append(rejected, append([]byte(nil), raw...))

			continue
		}

		entry := telemetry.BufferEntry{Tag: decoded.Tag, Body: decoded.Body}

		ok, err := replay(entry)
		if err != nil {
			return err
		}

		if !ok {
			remaining = append(remaining, append([]byte(nil), raw...))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan buffer file: %w", err)
	}

	if len(rejected) > 0 {
		if err := appendLines(path+rejectedSuffix, rejected); err != nil {
			return fmt.Errorf("failed to quarantine unparseable entries: %w", err)
		}
	}

	return compact(path, remaining)
}

// compact atomically rewrites path to contain only the given lines. An
// atomic rename means a crash mid-compaction leaves either the old file or
// the new one intact, never a partial write; any entry that gets
// re-replayed as a result is safe because the server is idempotent on
// event_id (§4.5).
func compact(path string, lines [][]byte) error {
	if len(lines) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}

		return nil
	}

	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}

	for _, l := range lines {
		if _, err := f.Write(append(l, '\n')); err != nil {
			_ = f.Close()

			return err
		}
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func appendLines(path string, lines [][]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	for _, l := range lines {
		if _, err := f.Write(append(l, '\n')); err != nil {
			return err
		}
	}

	return f.Sync()
}

// pathForDate returns the spool filename for the given day.
func (b *BufferFile) pathForDate(t time.Time) string {
	return filepath.Join(b.dir, filePrefix+t.UTC().Format(dateLayout)+fileSuffix)
}

// spoolFiles lists every events_YYYYMMDD.ndjson file in the buffer
// directory, oldest first.
func (b *BufferFile) spoolFiles() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list buffer directory: %w", err)
	}

	var files []string

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}

		files = append(files, filepath.Join(b.dir, name))
	}

	sort.Strings(files)

	return files, nil
}
