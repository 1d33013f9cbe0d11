package deadletter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// rotatingFile is a size-based rotating line writer, adapted from the
// teacher's transport/file.RotatingFile: once the active file exceeds
// maxBytes, it is renamed with a numeric suffix (path.1, path.2, …) and a
// fresh file is opened; at most maxBackups rotated files are kept.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
	file       *os.File
	size       int64
	logger     *slog.Logger
}

func newRotatingFile(path string, maxBytes int64, maxBackups int, logger *slog.Logger) (*rotatingFile, error) {
	if path == "" {
		return nil, fmt.Errorf("rotate: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("rotate: mkdir %s: %w", dir, err)
		}
	}

	rf := &rotatingFile{path: path, maxBytes: maxBytes, maxBackups: maxBackups, logger: logger}
	if err := rf.openFile(); err != nil {
		return nil, err
	}
	return rf, nil
}

// writeLine writes line followed by a newline, rotating first if the
// write would push the active file past maxBytes.
func (rf *rotatingFile) writeLine(line []byte) error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.maxBytes > 0 && rf.size+int64(len(line))+1 > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			rf.logger.Error("deadletter: rotate failed", "error", err.Error())
		}
	}

	n, err := rf.file.Write(append(line, '\n'))
	rf.size += int64(n)
	return err
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *rotatingFile) openFile() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("rotate: open %s: %w", rf.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("rotate: stat %s: %w", rf.path, err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// rotate renames the active file through numbered backups and opens a
// fresh one in its place. Rotation scheme: path.N-1 → path.N, …,
// path → path.1; anything beyond maxBackups is pruned.
func (rf *rotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			rf.logger.Warn("deadletter: rotate: close error", "error", err.Error())
		}
		rf.file = nil
	}

	limit := rf.maxBackups
	if limit == 0 {
		limit = rf.findMaxBackup()
	} else {
		_ = os.Remove(fmt.Sprintf("%s.%d", rf.path, rf.maxBackups))
	}
	for i := limit; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", rf.path, i), fmt.Sprintf("%s.%d", rf.path, i+1))
	}
	if err := os.Rename(rf.path, rf.path+".1"); err != nil && !os.IsNotExist(err) {
		rf.logger.Warn("deadletter: rotate: rename error", "error", err.Error())
	}

	rf.logger.Info("deadletter: rotated", "file", rf.path)

	rf.size = 0
	return rf.openFile()
}

func (rf *rotatingFile) findMaxBackup() int {
	max := 0
	for i := 1; ; i++ {
		if _, err := os.Stat(fmt.Sprintf("%s.%d", rf.path, i)); os.IsNotExist(err) {
			break
		}
		max = i
	}
	return max
}
