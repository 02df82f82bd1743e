package tiles

import "fmt"

// A Pair is a candidate adjacency between two tiles, with the result of
// registering them: B's origin sits at Shift in A's local frame.
type Pair struct {
	A, B       *Tile
	RoiA, RoiB Roi
	Timepoint  int

	Shift            []float64
	Correlation      float64 // Cross correlation of the overlap, the confidence
	PhaseCorrelation float64 // Height of the phase correlation peak
	Valid            bool
	Registered       bool
}

func NewPair(a, b *Tile) *Pair {
	return &Pair{A: a, B: b, RoiA: FullRoi(), RoiB: FullRoi()}
}

// Invalidate drops the pair from any further optimization.
func (p *Pair) Invalidate() {
	p.Valid = false
}

func (p *Pair) String() string {
	return fmt.Sprintf("%s[%d] -> %s[%d]", p.A.Name, p.Timepoint+1, p.B.Name, p.Timepoint+1)
}
