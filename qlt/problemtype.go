package qlt

import "fmt"

// ProblemType is the bit-flag mask callers use to declare a tracer,
// per spec.md §6. Internally every accepted mask is canonicalized to
// one of four problemType values so that combine/split logic never
// branches on individual bits.
type ProblemType uint8

const (
	Shapepreserve ProblemType = 1 << iota
	Conserve
	Consistent
)

// nprobtypes is the number of canonical problem types the system
// recognizes (spec.md §3).
const nprobtypes = 4

// problemType indexes the four canonical combinations in the fixed
// order the prefix tables use: {s|st, cs|cst, t, ct}.
type problemType int

const (
	ptShapepreserve problemType = iota // s or st
	ptConserveShape                    // cs or cst
	ptConsistentOnly                   // t
	ptConserveOnly                     // ct
)

// canonicalMasks holds, for each problemType, the ProblemType bits a
// tracer of that canonical type is reported as having via
// (*MetaData).ProblemType. This mirrors cedr_qlt.cpp's
// problem_type_[] table.
var canonicalMasks = [nprobtypes]ProblemType{
	ptShapepreserve:  Shapepreserve | Consistent,
	ptConserveShape:  Conserve | Shapepreserve | Consistent,
	ptConsistentOnly: Consistent,
	ptConserveOnly:   Conserve | Consistent,
}

// canonicalize maps one of the accepted masks (s|st, cs|cst, t, ct)
// to its canonical problemType index. Any other mask is an error.
func canonicalize(mask ProblemType) (problemType, error) {
	switch mask {
	case Shapepreserve, Shapepreserve | Consistent:
		return ptShapepreserve, nil
	case Conserve | Shapepreserve, Conserve | Shapepreserve | Consistent:
		return ptConserveShape, nil
	case Consistent:
		return ptConsistentOnly, nil
	case Conserve | Consistent:
		return ptConserveOnly, nil
	default:
		return 0, fmt.Errorf("%w: %#x", ErrUnknownProblemType, uint8(mask))
	}
}

// l2rBulkSize returns the number of L2R slots a tracer of this
// canonical type occupies: (min|sum, Qm, max|sum, [Qm_prev]). The
// density lives in slot 0 of the record, outside every tracer block.
func (p problemType) l2rBulkSize() int {
	if canonicalMasks[p]&Conserve != 0 {
		return 4
	}
	return 3
}

// r2lBulkSize returns the number of R2L slots a tracer of this
// canonical type occupies.
func (p problemType) r2lBulkSize() int {
	if canonicalMasks[p]&Shapepreserve != 0 {
		return 1
	}
	return 3
}

func (p problemType) shapepreserve() bool {
	return canonicalMasks[p]&Shapepreserve != 0
}

func (p problemType) conserve() bool {
	return canonicalMasks[p]&Conserve != 0
}

// Mask returns the canonical ProblemType bitmask for p.
func (p problemType) Mask() ProblemType {
	return canonicalMasks[p]
}

// String renders the problem type mask, e.g. "cst" for
// conserve|shapepreserve|consistent.
func (m ProblemType) String() string {
	s := ""
	if m&Conserve != 0 {
		s += "c"
	}
	if m&Shapepreserve != 0 {
		s += "s"
	}
	if m&Consistent != 0 {
		s += "t"
	}
	if s == "" {
		return "none"
	}
	return s
}
