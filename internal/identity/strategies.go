package identity

import (
	"strings"
)

// dotStrategy inserts separators into a local part. Strategies are tried in
// order; each one owns the attempt indexes below its until bound.
type dotStrategy struct {
	name  string
	until int
	apply func(g *Generator, user string, attempt int) string
}

func defaultStrategies() []dotStrategy {
	return []dotStrategy{
		{name: "sparse", until: 20, apply: sparseDots},
		{name: "moderate", until: 50, apply: moderateDots},
		{name: "dense", until: 80, apply: denseDots},
		{name: "exhaustive", until: maxVariantAttempts, apply: exhaustiveDots},
	}
}

// sparseDots inserts two or three separators at random positions.
func sparseDots(g *Generator, user string, _ int) string {
	n := len(user)
	if n < 3 {
		return user + "." + g.millisSuffix(4)
	}
	hi := min(3, n-1)
	count := 2 + g.rng.IntN(hi-2+1)
	return insertDots(user, g.pickPositions(n, count))
}

// moderateDots inserts between a quarter and a half of the possible
// separators.
func moderateDots(g *Generator, user string, _ int) string {
	n := len(user)
	if n < 4 {
		return dotEvery(user, func(int) bool { return true })
	}
	hi := min(n/2, n-1)
	lo := hi / 2
	count := lo + g.rng.IntN(hi-lo+1)
	return insertDots(user, g.pickPositions(n, count))
}

// densePatterns each decide whether a separator follows rune index i of an
// n-character local part.
var densePatterns = []func(i, n int) bool{
	// every two characters
	func(i, _ int) bool { return (i+1)%2 == 0 },
	// alternating
	func(i, _ int) bool { return i%2 == 0 },
	// front loaded
	func(i, n int) bool { return i+1 <= n/2 },
	// back loaded
	func(i, n int) bool { return i+1 > n/2 },
	// middle loaded
	func(i, n int) bool { return i >= n/3 && i < 2*n/3 },
}

func denseDots(g *Generator, user string, _ int) string {
	pattern := densePatterns[g.rng.IntN(len(densePatterns))]
	n := len(user)
	return dotEvery(user, func(i int) bool { return pattern(i, n) })
}

// exhaustiveDots enumerates separator layouts: bit i of sequence, counted
// from the most significant of the n-1 gap bits, places a separator after
// character i.
func exhaustiveDots(_ *Generator, user string, sequence int) string {
	n := len(user)
	if n < 2 {
		return user
	}
	gaps := n - 1
	return dotEvery(user, func(i int) bool {
		shift := gaps - 1 - i
		if shift < 0 || shift >= 63 {
			return false
		}
		return sequence>>shift&1 == 1
	})
}

// pickPositions samples count distinct gap positions in [1, n).
func (g *Generator) pickPositions(n, count int) map[int]bool {
	gaps := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		gaps = append(gaps, i)
	}
	g.rng.Shuffle(len(gaps), func(i, j int) { gaps[i], gaps[j] = gaps[j], gaps[i] })
	picked := make(map[int]bool, count)
	for _, p := range gaps[:min(count, len(gaps))] {
		picked[p] = true
	}
	return picked
}

// insertDots places a separator before every character index in positions.
func insertDots(user string, positions map[int]bool) string {
	return dotEvery(user, func(i int) bool { return positions[i+1] })
}

// dotEvery writes user with a separator after character i whenever after(i)
// holds. No separator is ever written after the last character.
func dotEvery(user string, after func(i int) bool) string {
	var b strings.Builder
	b.Grow(len(user) * 2)
	for i := 0; i < len(user); i++ {
		b.WriteByte(user[i])
		if i < len(user)-1 && after(i) {
			b.WriteByte('.')
		}
	}
	return b.String()
}
