// Package stratum plans the sequence of contiguous file-size ranges a
// sampling run walks through. GitHub caps any single code search at
// 1000 results, so the size axis is cut into fixed-width strata narrow
// enough that each one can be harvested (near-)exhaustively.
package stratum

import "fmt"

// Stratum is one inclusive file-size range, in bytes.
type Stratum struct {
	First int
	Last  int
}

func (s Stratum) String() string {
	return fmt.Sprintf("[%d, %d]", s.First, s.Last)
}

// Planner walks the size axis from minSize to maxSize in fixed-width
// steps. The final stratum is clipped to maxSize so the union of all
// strata is exactly [minSize, maxSize] with no gaps or overlaps.
type Planner struct {
	minSize int
	maxSize int
	width   int

	first int
}

// NewPlanner creates a planner positioned at the first stratum.
// Bounds are assumed validated upstream: minSize >= 1, maxSize >=
// minSize, width >= 1.
func NewPlanner(minSize, maxSize, width int) *Planner {
	return &Planner{
		minSize: minSize,
		maxSize: maxSize,
		width:   width,
		first:   minSize,
	}
}

// Done reports whether every stratum has been consumed.
func (p *Planner) Done() bool {
	return p.first > p.maxSize
}

// Current returns the stratum the planner is positioned at. Calling
// Current after Done is a programming error.
func (p *Planner) Current() Stratum {
	last := p.first + p.width - 1
	if last > p.maxSize {
		last = p.maxSize
	}
	return Stratum{First: p.first, Last: last}
}

// Advance moves the planner past the current stratum.
func (p *Planner) Advance() {
	p.first += p.width
}
