package market

import "sort"

// Aligner maps an index in a fine-grained series to the last candle of a
// coarser series that is already known at that moment (coarse.Time <= fine.Time).
//
// The replay loop only moves forward, so Index keeps a forward pointer and
// falls back to a binary search when asked about an earlier index.
type Aligner struct {
	fine   []Candle
	coarse []Candle

	lastFine int
	ptr      int // last aligned coarse index, -1 when none qualifies
}

func NewAligner(fine, coarse Series) *Aligner {
	return &Aligner{
		fine:     fine.Candles,
		coarse:   coarse.Candles,
		lastFine: -1,
		ptr:      -1,
	}
}

// Index returns the aligned coarse index for fine index i, or -1.
func (a *Aligner) Index(i int) int {
	if i < 0 || i >= len(a.fine) {
		return -1
	}
	if i < a.lastFine {
		idx := a.search(i)
		a.lastFine, a.ptr = i, idx
		return idx
	}

	t := a.fine[i].Time
	for a.ptr+1 < len(a.coarse) && !a.coarse[a.ptr+1].Time.After(t) {
		a.ptr++
	}
	a.lastFine = i
	return a.ptr
}

// search is the stateless lookup: last coarse index with Time <= fine[i].Time.
func (a *Aligner) search(i int) int {
	t := a.fine[i].Time
	n := sort.Search(len(a.coarse), func(j int) bool {
		return a.coarse[j].Time.After(t)
	})
	return n - 1
}

// Slices returns the as-of views of both series at fine index i:
// fine[0:i+1] and coarse[0:Index(i)+1].
func (a *Aligner) Slices(i int) (fine, coarse []Candle) {
	if i < 0 || i >= len(a.fine) {
		return nil, nil
	}
	j := a.Index(i)
	return a.fine[:i+1], a.coarse[:j+1]
}
