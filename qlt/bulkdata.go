package qlt

// BulkData is the flat, offset-addressed storage for one rank's L2R
// and R2L records (spec.md §3). Every NodeSets offset addresses a
// fixed-width slot in each buffer; widths come from the MetaData the
// buffer was built against.
type BulkData struct {
	l2r      []float64
	r2l      []float64
	l2rWidth int
	r2lWidth int
}

// NewBulkData allocates a BulkData sized for nslots distinct offsets
// under the given (closed) MetaData.
func NewBulkData(md *MetaData, nslots int) *BulkData {
	l2rw := md.L2RWidth()
	r2lw := md.R2LWidth()
	return &BulkData{
		l2r:      make([]float64, nslots*l2rw),
		r2l:      make([]float64, nslots*r2lw),
		l2rWidth: l2rw,
		r2lWidth: r2lw,
	}
}

// L2RSlot returns the L2R record at offset, as a sub-slice sharing
// storage with the buffer.
func (bd *BulkData) L2RSlot(offset int) []float64 {
	base := offset * bd.l2rWidth
	return bd.l2r[base : base+bd.l2rWidth]
}

// R2LSlot returns the R2L record at offset, as a sub-slice sharing
// storage with the buffer.
func (bd *BulkData) R2LSlot(offset int) []float64 {
	base := offset * bd.r2lWidth
	return bd.r2l[base : base+bd.r2lWidth]
}

// L2RTracer returns the per-tracer block within an offset's L2R
// record, using the tracer's block displacement from md.
func (bd *BulkData) L2RTracer(md *MetaData, offset, tracerIdx int) ([]float64, error) {
	bdi, err := md.l2rBlockDisplacement(tracerIdx)
	if err != nil {
		return nil, err
	}
	sz := md.problemTypeOf(tracerIdx).l2rBulkSize()
	slot := bd.L2RSlot(offset)
	return slot[bdi : bdi+sz], nil
}

// R2LTracer returns the per-tracer block within an offset's R2L
// record, using the tracer's block displacement from md.
func (bd *BulkData) R2LTracer(md *MetaData, offset, tracerIdx int) ([]float64, error) {
	bdi, err := md.r2lBlockDisplacement(tracerIdx)
	if err != nil {
		return nil, err
	}
	sz := md.problemTypeOf(tracerIdx).r2lBulkSize()
	slot := bd.R2LSlot(offset)
	return slot[bdi : bdi+sz], nil
}
