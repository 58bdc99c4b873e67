package kernel

import (
	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/buddy"
)

// The five error kinds of spec §7. ErrInvalidArg, ErrNoMemory, and
// ErrBadAddress are the same sentinels the buddy allocator returns, so
// errors.Is matches regardless of which layer produced the wrapped
// error.
var (
	ErrInvalidArg   = buddy.ErrInvalidArg
	ErrNoMemory     = buddy.ErrNoMemory
	ErrBadAddress   = buddy.ErrBadAddress
	ErrTryAgain     = errors.New("try again: resource temporarily unavailable")
	ErrNotPermitted = errors.New("operation not permitted")
)
