package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignerIndex(t *testing.T) {
	t.Parallel()

	// Fine series starts 10 minutes before the first coarse bar.
	fine := minuteSeries(t0.Add(-10*time.Minute), M1, 60)
	coarse := minuteSeries(t0, M15, 4)

	a := NewAligner(fine, coarse)

	assert.Equal(t, -1, a.Index(0), "no coarse bar known yet")
	assert.Equal(t, -1, a.Index(9))
	assert.Equal(t, 0, a.Index(10), "coarse bar at the same timestamp qualifies")
	assert.Equal(t, 0, a.Index(24))
	assert.Equal(t, 1, a.Index(25))
	assert.Equal(t, 3, a.Index(59))
}

func TestAlignerForwardPointerMatchesSearch(t *testing.T) {
	t.Parallel()

	fine := minuteSeries(t0, M1, 500)
	coarse := minuteSeries(t0.Add(3*time.Minute), M15, 30)

	a := NewAligner(fine, coarse)
	ref := NewAligner(fine, coarse)

	// forward with skips, like the replay loop
	for i := 0; i < fine.Len(); i += 1 + i%7 {
		require.Equal(t, ref.search(i), a.Index(i), "index %d", i)
	}

	// going backwards falls back to binary search
	assert.Equal(t, ref.search(40), a.Index(40))
	assert.Equal(t, ref.search(41), a.Index(41))
}

func TestAlignerSlicesHaveNoLookAhead(t *testing.T) {
	t.Parallel()

	fine := minuteSeries(t0, M1, 200)
	coarse := minuteSeries(t0, M15, 14)
	a := NewAligner(fine, coarse)

	for _, i := range []int{0, 14, 15, 16, 100, 199} {
		f, c := a.Slices(i)
		require.Len(t, f, i+1)
		now := fine.Candles[i].Time
		for _, cc := range c {
			assert.False(t, cc.Time.After(now), "coarse candle %s after %s", cc.Time, now)
		}
		// every coarse candle <= now is included
		want := 0
		for _, cc := range coarse.Candles {
			if !cc.Time.After(now) {
				want++
			}
		}
		assert.Len(t, c, want)
	}
}

func TestAlignerOutOfRange(t *testing.T) {
	t.Parallel()

	a := NewAligner(minuteSeries(t0, M1, 3), minuteSeries(t0, M15, 1))
	assert.Equal(t, -1, a.Index(-1))
	assert.Equal(t, -1, a.Index(3))

	f, c := a.Slices(5)
	assert.Nil(t, f)
	assert.Nil(t, c)
}
