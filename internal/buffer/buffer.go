// Package buffer keeps host snapshots on disk while the export endpoint is
// unreachable. Each batch is a timestamped JSON file, so buffered data
// survives restarts. The oldest batch is dropped when the size limit is hit.
package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/models"
)

// Buffer stores snapshot batches in a directory.
type Buffer struct {
	dir       string
	maxSizeMB int
	logger    *zap.Logger
	mu        sync.Mutex
	seq       int
}

// New creates a buffer in dir, creating the directory when missing.
func New(dir string, maxSizeMB int, logger *zap.Logger) (*Buffer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &Buffer{
		dir:       dir,
		maxSizeMB: maxSizeMB,
		logger:    logger.Named("buffer"),
	}, nil
}

// Store writes a batch of snapshots to a new file.
func (b *Buffer) Store(snapshots []models.HostSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxSizeMB > 0 && b.currentSizeMB() >= b.maxSizeMB {
		b.logger.Warn("Buffer full, dropping oldest batch")
		b.dropOldest()
	}

	data, err := json.Marshal(snapshots)
	if err != nil {
		return err
	}
	b.seq++
	name := filepath.Join(b.dir, fmt.Sprintf("%s-%06d.json", time.Now().UTC().Format("20060102T150405.000000000"), b.seq%1000000))
	return os.WriteFile(name, data, 0640)
}

// RetrieveAll returns every buffered batch, oldest first, and removes the
// files read. Unreadable batches are removed and logged.
func (b *Buffer) RetrieveAll() ([][]models.HostSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	files, err := b.files()
	if err != nil {
		return nil, err
	}

	var batches [][]models.HostSnapshot
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("Failed to read buffer file", zap.String("file", path), zap.Error(err))
			continue
		}

		var batch []models.HostSnapshot
		if err := json.Unmarshal(data, &batch); err != nil {
			b.logger.Warn("Failed to parse buffer file, removing corrupted file", zap.String("file", path), zap.Error(err))
			_ = os.Remove(path)
			continue
		}

		batches = append(batches, batch)
		_ = os.Remove(path)
	}
	return batches, nil
}

// Count returns the number of buffered batches.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	files, _ := b.files()
	return len(files)
}

// files lists the batch files in chronological order. Must be called with
// b.mu held.
func (b *Buffer) files() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			out = append(out, filepath.Join(b.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// currentSizeMB returns the size of the buffered files in megabytes. Must be
// called with b.mu held.
func (b *Buffer) currentSizeMB() int {
	files, err := b.files()
	if err != nil {
		return 0
	}
	var total int64
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			total += info.Size()
		}
	}
	return int(total / (1024 * 1024))
}

// dropOldest removes the oldest batch. Must be called with b.mu held.
func (b *Buffer) dropOldest() {
	files, err := b.files()
	if err != nil || len(files) == 0 {
		return
	}
	if err := os.Remove(files[0]); err != nil {
		b.logger.Warn("Failed to remove oldest buffer file", zap.String("file", files[0]), zap.Error(err))
	}
}
