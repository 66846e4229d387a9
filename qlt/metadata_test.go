package qlt

import "testing"

// TestMetaDataPrefixTables declares a mix of the four canonical
// problem types and checks the resulting widths and block
// displacements match cedr_qlt.cpp's MetaData::init layout: tracers
// are grouped by canonical type in prefix order, slot 0 of the L2R
// record is reserved for density, and every tracer's block fits
// inside its type's contiguous run without overlapping another type's
// run.
func TestMetaDataPrefixTables(t *testing.T) {
	md := NewMetaData()

	masks := []ProblemType{
		Shapepreserve,                        // ptShapepreserve, l2r=3 r2l=1
		Consistent,                           // ptConsistentOnly, l2r=3 r2l=3
		Conserve | Shapepreserve,             // ptConserveShape, l2r=4 r2l=1
		Conserve | Consistent,                // ptConserveOnly, l2r=4 r2l=3
		Shapepreserve | Consistent,           // canonicalizes to ptShapepreserve
		Conserve | Shapepreserve | Consistent, // canonicalizes to ptConserveShape
	}
	idxs := make([]int, len(masks))
	for i, m := range masks {
		idx, err := md.DeclareTracer(m)
		if err != nil {
			t.Fatalf("DeclareTracer(%v) failed: %v", m, err)
		}
		idxs[i] = idx
	}
	if err := md.EndTracerDeclarations(); err != nil {
		t.Fatalf("EndTracerDeclarations: %v", err)
	}

	// two ptShapepreserve (l2r 3, r2l 1) + two ptConserveShape (l2r 4, r2l 1)
	// + one ptConsistentOnly (l2r 3, r2l 3) + one ptConserveOnly (l2r 4, r2l 3),
	// plus the one reserved density slot at the front of every L2R record.
	wantL2R := 1 + 2*3 + 2*4 + 1*3 + 1*4
	wantR2L := 2*1 + 2*1 + 1*3 + 1*3
	if got := md.L2RWidth(); got != wantL2R {
		t.Errorf("L2RWidth() = %d, want %d", got, wantL2R)
	}
	if got := md.R2LWidth(); got != wantR2L {
		t.Errorf("R2LWidth() = %d, want %d", got, wantR2L)
	}

	// Every tracer's L2R/R2L block must fit entirely within [0, width)
	// and not overlap the reserved density slot at L2R offset 0.
	for _, idx := range idxs {
		pt, err := md.ProblemType(idx)
		if err != nil {
			t.Fatalf("ProblemType(%d): %v", idx, err)
		}
		cpt, err := canonicalize(pt)
		if err != nil {
			t.Fatalf("canonicalize(%v): %v", pt, err)
		}

		l2rbdi, err := md.l2rBlockDisplacement(idx)
		if err != nil {
			t.Fatalf("l2rBlockDisplacement(%d): %v", idx, err)
		}
		if l2rbdi < 1 {
			t.Errorf("tracer %d: l2r displacement %d overlaps reserved density slot", idx, l2rbdi)
		}
		if l2rbdi+cpt.l2rBulkSize() > md.L2RWidth() {
			t.Errorf("tracer %d: l2r block [%d,%d) exceeds width %d", idx, l2rbdi, l2rbdi+cpt.l2rBulkSize(), md.L2RWidth())
		}

		r2lbdi, err := md.r2lBlockDisplacement(idx)
		if err != nil {
			t.Fatalf("r2lBlockDisplacement(%d): %v", idx, err)
		}
		if r2lbdi+cpt.r2lBulkSize() > md.R2LWidth() {
			t.Errorf("tracer %d: r2l block [%d,%d) exceeds width %d", idx, r2lbdi, r2lbdi+cpt.r2lBulkSize(), md.R2LWidth())
		}
	}

	// bidx2trcr/trcr2bidx must be inverse permutations of [0, ntracers).
	if md.NumTracers() != len(masks) {
		t.Fatalf("NumTracers() = %d, want %d", md.NumTracers(), len(masks))
	}
	for bidx := 0; bidx < md.NumTracers(); bidx++ {
		ti := md.bidx2trcr[bidx]
		if md.trcr2bidx[ti] != bidx {
			t.Errorf("trcr2bidx[bidx2trcr[%d]] = %d, want %d", bidx, md.trcr2bidx[ti], bidx)
		}
	}
}

func TestMetaDataRejectsUnknownMask(t *testing.T) {
	md := NewMetaData()
	if _, err := md.DeclareTracer(ProblemType(0)); err == nil {
		t.Error("expected error declaring the empty mask")
	}
}

func TestMetaDataRejectsDeclareAfterClose(t *testing.T) {
	md := NewMetaData()
	if _, err := md.DeclareTracer(Consistent); err != nil {
		t.Fatalf("DeclareTracer: %v", err)
	}
	if err := md.EndTracerDeclarations(); err != nil {
		t.Fatalf("EndTracerDeclarations: %v", err)
	}
	if _, err := md.DeclareTracer(Consistent); err == nil {
		t.Error("expected error declaring a tracer after EndTracerDeclarations")
	}
	if err := md.EndTracerDeclarations(); err == nil {
		t.Error("expected error calling EndTracerDeclarations twice")
	}
}

// TestBulkDataTracerBlocksDoNotAlias checks that L2RTracer/R2LTracer
// slices for distinct tracers at the same offset never overlap.
func TestBulkDataTracerBlocksDoNotAlias(t *testing.T) {
	md := NewMetaData()
	tShape, _ := md.DeclareTracer(Shapepreserve)
	tCons, _ := md.DeclareTracer(Conserve | Consistent)
	if err := md.EndTracerDeclarations(); err != nil {
		t.Fatalf("EndTracerDeclarations: %v", err)
	}

	bd := NewBulkData(md, 1)
	l2rShape, err := bd.L2RTracer(md, 0, tShape)
	if err != nil {
		t.Fatalf("L2RTracer: %v", err)
	}
	l2rCons, err := bd.L2RTracer(md, 0, tCons)
	if err != nil {
		t.Fatalf("L2RTracer: %v", err)
	}
	l2rCons[0] = 42
	for _, v := range l2rShape {
		if v == 42 {
			t.Error("writing tCons's L2R block clobbered tShape's L2R block")
		}
	}
}
