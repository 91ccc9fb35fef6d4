// Package similarity provides approximate string similarity measures on a 0..100 scale.
package similarity

import "math"

// Func scores how similar two strings are, from 0 (nothing in common) to 100 (identical).
// The scorer depends on this type only, so any measure with the same range can be swapped in.
type Func func(a, b string) int

// perfectThreshold short-circuits the window scan once a window is effectively identical.
const perfectThreshold = 0.995

// PartialRatio returns the best Ratio of the shorter string against every window of the
// longer string that has the shorter string's length. A string that is a substring of the
// other scores 100. Either side being empty scores 0.
//
// Comparison is case-sensitive and operates on runes.
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	shorter, longer := ra, rb
	if len(ra) > len(rb) {
		shorter, longer = rb, ra
	}

	best := 0.0
	window := len(shorter)
	for start := 0; start+window <= len(longer); start++ {
		r := ratio(shorter, longer[start:start+window])
		if r > perfectThreshold {
			return 100
		}
		if r > best {
			best = r
		}
	}

	return toPercent(best)
}

// Ratio returns 2*M/T scaled to 0..100, where M is the number of characters covered by
// Ratcliff/Obershelp matching blocks and T is the combined length of both strings.
// Either side being empty scores 0.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return toPercent(ratio(ra, rb))
}

// ratio is the unscaled 0..1 similarity of a and b.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingCharacters(a, b)) / float64(total)
}

// toPercent rounds half to even, matching the integer percentages the reason text embeds.
func toPercent(r float64) int {
	return int(math.RoundToEven(r * 100))
}

// matchingCharacters counts the characters of a that Ratcliff/Obershelp pairs with b:
// take the longest common block, then recurse on the pieces left and right of it.
func matchingCharacters(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }

	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		matched += k

		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside the given ranges.
// Among equally long blocks it prefers the one starting earliest in a, then earliest in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (int, int, int) {
	bestI, bestJ, bestK := alo, blo, 0

	// prev[j+1] holds the length of the common suffix ending at a[i-1], b[j].
	prev := make([]int, bhi-blo+1)
	curr := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			col := j - blo + 1
			if a[i] != b[j] {
				curr[col] = 0
				continue
			}
			k := prev[col-1] + 1
			curr[col] = k

			startI, startJ := i-k+1, j-k+1
			if k > bestK || (k == bestK && (startI < bestI || (startI == bestI && startJ < bestJ))) {
				bestI, bestJ, bestK = startI, startJ, k
			}
		}
		prev, curr = curr, prev
	}

	return bestI, bestJ, bestK
}
