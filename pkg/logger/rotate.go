package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultAuditSizeMB  = 50
	defaultAuditBackups = 5
	defaultAuditAgeDays = 30

	backupTimeFormat = "20060102T150405.000000000"
)

// auditFile is an append-only file that is moved aside to
// <name>-<timestamp><ext> when the next write would push it past limit.
// Old backups are pruned by count and by age.
type auditFile struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	maxAge  time.Duration
	now     func() time.Time
	file    *os.File
	written int64
}

func newAuditFile(path string, maxSizeMB, maxBackups, maxAgeDays int) (*auditFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultAuditSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultAuditBackups
	}
	if maxAgeDays <= 0 {
		maxAgeDays = defaultAuditAgeDays
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &auditFile{
		path:   path,
		limit:  int64(maxSizeMB) << 20,
		keep:   maxBackups,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
		now:    time.Now,
	}, nil
}

func (f *auditFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		if err := f.openLocked(); err != nil {
			return 0, err
		}
	}
	if f.written > 0 && f.written+int64(len(p)) > f.limit {
		if err := f.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := f.file.Write(p)
	f.written += int64(n)
	return n, err
}

func (f *auditFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file, f.written = nil, 0
	return err
}

func (f *auditFile) openLocked() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	f.file, f.written = file, info.Size()
	return nil
}

func (f *auditFile) rotateLocked() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	f.file, f.written = nil, 0

	if err := os.Rename(f.path, f.backupName(f.now())); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	f.pruneLocked()
	return f.openLocked()
}

func (f *auditFile) backupName(at time.Time) string {
	ext := filepath.Ext(f.path)
	return strings.TrimSuffix(f.path, ext) + "-" + at.UTC().Format(backupTimeFormat) + ext
}

// backups lists rotated files newest first. The timestamp layout sorts
// lexically in time order.
func (f *auditFile) backups() []string {
	ext := filepath.Ext(f.path)
	matches, _ := filepath.Glob(strings.TrimSuffix(f.path, ext) + "-*" + ext)
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches
}

func (f *auditFile) pruneLocked() {
	cutoff := f.now().Add(-f.maxAge)
	for i, name := range f.backups() {
		if i >= f.keep {
			_ = os.Remove(name)
			continue
		}
		if info, err := os.Stat(name); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(name)
		}
	}
}
