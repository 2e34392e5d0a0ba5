package relevance

import (
	"math/bits"

	"github.com/hbollon/go-edlib"
)

// shortPair is the longest string length scored window by window with edlib.
const shortPair = 64

// PartialRatio scores how well the shorter string aligns with its best-matching
// window of the longer one, on a 0-100 scale. Each window is scored with the
// normalized indel similarity 2*LCS/(len(a)+len(window)). Windows include the
// partial overlaps at both ends of the longer string. Either string empty
// scores 0.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}
	n, m := len(s1), len(s2)

	var lcs func(window []rune) int
	if m <= shortPair {
		short := string(s1)
		lcs = func(window []rune) int { return edlib.LCS(short, string(window)) }
	} else {
		lcs = newLCSMatcher(s1).lcs
	}

	need := make(map[rune]int, n)
	for _, r := range s1 {
		need[r]++
	}
	have := make(map[rune]int, n)
	overlap := 0 // sum over runes of min(need, have)

	best := 0.0
	start, end := 0, 0

	advance := func(newStart, newEnd int) {
		for end < newEnd {
			r := s2[end]
			if have[r] < need[r] {
				overlap++
			}
			have[r]++
			end++
		}
		for start < newStart {
			r := s2[start]
			have[r]--
			if have[r] < need[r] {
				overlap--
			}
			start++
		}
	}

	score := func() {
		total := float64(n + end - start)
		// the shared-rune count bounds the LCS from above
		if 200*float64(overlap)/total <= best {
			return
		}
		if s := 200 * float64(lcs(s2[start:end])) / total; s > best {
			best = s
		}
	}

	// prefix windows, growing from the left edge
	for w := 1; w < n; w++ {
		advance(0, w)
		score()
		if best == 100 {
			return best
		}
	}
	// full-width windows
	for i := 0; i+n <= m; i++ {
		advance(i, i+n)
		score()
		if best == 100 {
			return best
		}
	}
	// suffix windows, shrinking toward the right edge
	for i := m - n + 1; i < m; i++ {
		advance(i, m)
		score()
		if best == 100 {
			return best
		}
	}
	return best
}

// lcsMatcher measures LCS lengths against a fixed pattern with the
// bit-parallel row recurrence, 64 pattern runes per word. The row buffer is
// reused between calls, so a matcher is not safe for concurrent use.
type lcsMatcher struct {
	n    int
	pm   map[rune][]uint64
	row  []uint64
	tail uint64 // valid bits of the last word
}

func newLCSMatcher(pattern []rune) *lcsMatcher {
	words := (len(pattern) + 63) / 64
	pm := make(map[rune][]uint64)
	for i, r := range pattern {
		mask, ok := pm[r]
		if !ok {
			mask = make([]uint64, words)
			pm[r] = mask
		}
		mask[i/64] |= 1 << (i % 64)
	}
	tail := ^uint64(0)
	if rem := len(pattern) % 64; rem != 0 {
		tail = 1<<rem - 1
	}
	return &lcsMatcher{n: len(pattern), pm: pm, row: make([]uint64, words), tail: tail}
}

func (m *lcsMatcher) lcs(text []rune) int {
	for i := range m.row {
		m.row[i] = ^uint64(0)
	}
	for _, r := range text {
		pm, ok := m.pm[r]
		if !ok {
			continue
		}
		var carry uint64
		for w, v := range m.row {
			u := v & pm[w]
			var sum uint64
			sum, carry = bits.Add64(v, u, carry)
			m.row[w] = sum | (v - u)
		}
	}
	count := 0
	last := len(m.row) - 1
	for w, v := range m.row {
		zeros := ^v
		if w == last {
			zeros &= m.tail
		}
		count += bits.OnesCount64(zeros)
	}
	return count
}
