package qlt

import "errors"

// Sentinel errors surfaced by setup-time precondition checks (spec.md
// §7's "Precondition violations during setup"). Callers can use
// errors.Is against these.
var (
	ErrMalformedTree      = errors.New("qlt: malformed tree")
	ErrCellIdxOutOfRange  = errors.New("qlt: leaf cellidx out of range")
	ErrDuplicateCellIdx   = errors.New("qlt: duplicate cellidx")
	ErrUnknownProblemType = errors.New("qlt: unrecognized problem-type mask")
	ErrDeclarationsClosed = errors.New("qlt: tracer declarations already closed")
	ErrDeclarationsOpen   = errors.New("qlt: end_tracer_declarations not yet called")
	ErrUnknownCell        = errors.New("qlt: global cell id not owned by this rank")
	ErrTracerIndex        = errors.New("qlt: tracer index out of range")
)
