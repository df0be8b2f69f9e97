package inject

import (
	"errors"
	"fmt"
)

// ErrFormat matches every *FormatError.
var ErrFormat = errors.New("not a valid module")

// ErrBadManifest matches a backup set whose manifest cannot be parsed.
var ErrBadManifest = errors.New("bad backup manifest")

// FormatError reports a file that is not a well-formed module. Nothing is
// written when one is returned.
type FormatError struct {
	Path   string
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s: %v: %s", e.Path, ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s at offset %d", e.Path, ErrFormat, e.Reason, e.Offset)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErrorf(path string, offset int, format string, args ...any) error {
	return &FormatError{Path: path, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// IOError wraps a failed read, copy or write of a target or backup file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
