package intake

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

// SaveError wraps an I/O failure while persisting an upload.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save upload %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may clear on its own (disk full),
// as opposed to permission and other persistent failures.
func (e *SaveError) Retryable() bool {
	return errors.Is(e.Err, syscall.ENOSPC) || errors.Is(e.Err, syscall.EDQUOT)
}

// SanitizeFilename strips every directory component from name, treating both
// slash styles as separators. It fails for names that reduce to nothing.
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(path.Clean("/" + name))
	base = strings.TrimSpace(base)
	switch base {
	case "", "/", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return base, nil
}

// SaveUploadedFile writes data to <upload dir>/<sanitized filename>, replacing
// any existing file of the same name, and returns the resulting path.
func (p *Processor) SaveUploadedFile(data []byte, filename string) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		return "", &SaveError{Path: p.uploadDir, Err: err}
	}

	dst := filepath.Join(p.uploadDir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", &SaveError{Path: dst, Err: err}
	}
	return dst, nil
}
