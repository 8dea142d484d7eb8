package btreekv

import (
	"errors"
	"fmt"

	"github.com/bishopmate/btreekv/internal/pager"
)

// ───────────────────────────────────────────────────────────────────────────
// Public error taxonomy
// ───────────────────────────────────────────────────────────────────────────
//
// internal/pager's error types never cross this package boundary as-is
// (external callers cannot import an internal/ package to type-assert
// against them); translateErr below copies their fields into these
// public equivalents instead.

// KeyTooLargeError reports a key longer than the global key-size limit.
type KeyTooLargeError struct {
	Size int
	Max  int
}

func (e *KeyTooLargeError) Error() string {
	return fmt.Sprintf("btreekv: key of %d bytes exceeds maximum of %d", e.Size, e.Max)
}

// ValueTooLargeError reports a value longer than the effective
// per-page value-size ceiling (see computeEffectiveMaxValue in db.go).
type ValueTooLargeError struct {
	Size int
	Max  int
}

func (e *ValueTooLargeError) Error() string {
	return fmt.Sprintf("btreekv: value of %d bytes exceeds maximum of %d", e.Size, e.Max)
}

// CorruptionError reports a checksum mismatch, bad magic, unsupported
// format version, or truncated cell detected while reading the file.
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("btreekv: corruption detected: %s", e.Detail)
}

// PageNotFoundError reports an internal reference to a page outside the
// file's current bounds — always a sign of a corrupted or truncated
// file, never something a caller can trigger through the public API.
type PageNotFoundError struct {
	ID uint32
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("btreekv: page %d not found", e.ID)
}

// InvalidArgumentError reports malformed configuration, such as a page
// size outside the supported range.
type InvalidArgumentError struct {
	Detail string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("btreekv: invalid argument: %s", e.Detail)
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var ce *pager.CorruptionError
	var pe *pager.PageNotFoundError
	var ie *pager.InvalidArgumentError
	switch {
	case errors.As(err, &ce):
		return &CorruptionError{Detail: ce.Detail}
	case errors.As(err, &pe):
		return &PageNotFoundError{ID: uint32(pe.ID)}
	case errors.As(err, &ie):
		return &InvalidArgumentError{Detail: ie.Detail}
	default:
		return err
	}
}
