package audit

import (
	"fmt"
	"os"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/tradegate/tradegate/internal/decision"
)

// Journal is an append-only JSON-lines record of every final decision.
// Entries are newline-delimited so the file tails cleanly; the most recent
// entries are also kept in memory for the status surface and the history
// evaluator.
type Journal struct {
	path      string
	maxSize   int64 // bytes before rotation
	keepCount int

	mu     sync.Mutex
	file   *os.File
	size   int64
	recent []*decision.Decision // ring, newest last
}

// Options configures a Journal.
type Options struct {
	// MaxSizeMB rotates the file once it exceeds this size. Zero means 64.
	MaxSizeMB int
	// KeepEntries bounds the in-memory recent ring. Zero means 256.
	KeepEntries int
}

// Open creates or appends to the journal at path.
func Open(path string, opts Options) (*Journal, error) {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 64
	}
	if opts.KeepEntries == 0 {
		opts.KeepEntries = 256
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}

	return &Journal{
		path:      path,
		maxSize:   int64(opts.MaxSizeMB) * 1024 * 1024,
		keepCount: opts.KeepEntries,
		file:      file,
		size:      info.Size(),
	}, nil
}

// Append writes one decision as a JSON line and records it in the recent
// ring.
func (j *Journal) Append(d *decision.Decision) error {
	data, err := sonic.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.size+int64(len(data)) > j.maxSize {
		// A failed rotation is not fatal while the file is still
		// writable; an oversized journal beats lost entries.
		if err := j.rotateLocked(); err != nil && j.file == nil {
			return err
		}
	}

	n, err := j.file.Write(data)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}

	j.recent = append(j.recent, d)
	if len(j.recent) > j.keepCount {
		j.recent = j.recent[len(j.recent)-j.keepCount:]
	}
	return nil
}

// Recent returns up to n most recent decisions, newest first.
func (j *Journal) Recent(n int) []*decision.Decision {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n <= 0 || n > len(j.recent) {
		n = len(j.recent)
	}

	out := make([]*decision.Decision, n)
	for i := 0; i < n; i++ {
		out[i] = j.recent[len(j.recent)-1-i]
	}
	return out
}

// rotateLocked moves the current file aside and starts a fresh one. When the
// rename fails, the original path is reopened so appends keep flowing and
// rotation retries on a later append. Caller holds the lock.
func (j *Journal) rotateLocked() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal for rotation: %w", err)
	}
	renameErr := os.Rename(j.path, j.path+".1")

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		j.file = nil
		return fmt.Errorf("failed to reopen journal: %w", err)
	}
	j.file = file

	if renameErr != nil {
		if info, err := file.Stat(); err == nil {
			j.size = info.Size()
		}
		return fmt.Errorf("failed to rotate journal: %w", renameErr)
	}
	j.size = 0
	return nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
