package pager

import (
	"errors"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Error taxonomy
// ───────────────────────────────────────────────────────────────────────────
//
// ErrPageFull is handled entirely within this package (the B-tree reacts
// by splitting) and must never escape to the btreekv façade. Every other
// error type here is propagated verbatim to the caller, wrapped with
// fmt.Errorf("...: %w", err) at the point it's returned rather than
// through a bespoke errors framework.

// ErrPageFull signals that a cell does not fit in a page even after
// defragmentation. It never crosses the pager/btree boundary outward —
// the B-tree catches it and splits.
var ErrPageFull = errors.New("pager: page full")

// PageNotFoundError reports a request for a page identifier outside
// [0, pageCount) or absent from both cache and disk.
type PageNotFoundError struct {
	ID PageID
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("pager: page %d not found", e.ID)
}

// CorruptionError reports a checksum mismatch, bad magic, unsupported
// format version, or truncated cell.
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("pager: corruption detected: %s", e.Detail)
}

// InvalidArgumentError reports malformed configuration.
type InvalidArgumentError struct {
	Detail string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("pager: invalid argument: %s", e.Detail)
}
