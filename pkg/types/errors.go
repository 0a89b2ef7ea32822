package types

import "errors"

// Input-class errors, returned by the pure data model layer and
// propagated verbatim by callers that only wrap, never swallow, them.
var (
	ErrBadAddress  = errors.New("BadAddress")
	ErrBadChecksum = errors.New("BadChecksum")
)
