package audit

import (
	"os"
	"sync"
)

// FileWriter appends signed NDJSON lines to a local file, satisfying
// Writer. It is the degraded-mode sink main.go falls back to when no
// persistence.Store is configured, the same "continue without" posture
// applied to every other optional collaborator.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileWriter opens (creating if necessary) path for appending.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f}, nil
}

// Append writes line followed by a newline.
func (w *FileWriter) Append(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return err
	}
	_, err := w.file.Write([]byte("\n"))
	return err
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	return w.file.Close()
}
