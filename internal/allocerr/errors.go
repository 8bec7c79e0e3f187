// Package allocerr holds the sentinel errors shared by every allocator
// package for the handful of calls that fail for reasons outside the
// null/bool contract the allocate/reallocate/is-owner-of hot path uses.
package allocerr

import "errors"

var (
	// ErrAlreadyInitialized is returned by Initialize when the allocator
	// has already been initialized (double-initialize is rejected, not
	// silently replaced).
	ErrAlreadyInitialized = errors.New("allocgo: already initialized")

	// ErrInvalidArgument is returned when a constructor argument is
	// malformed: a nil or empty buffer, a zero size, a VM range smaller
	// than one page, or a size that isn't page-aligned where page
	// alignment is required.
	ErrInvalidArgument = errors.New("allocgo: invalid argument")

	// ErrOutOfMemory is returned by a VM-backed allocator's Initialize
	// when the OS virtual memory primitive fails to reserve its range.
	// Commit failures surface as a nil allocation instead.
	ErrOutOfMemory = errors.New("allocgo: out of memory")
)
