// Package dsa provides the search structures behind the document index.
package dsa

import (
	"sort"
)

// SuffixArray indexes every suffix of a text for substring lookup.
// Lookup runs in O(m log n) for a pattern of length m over a text of length n.
type SuffixArray struct {
	text string
	sa   []int // sa[i] = start of the i-th smallest suffix
}

// NewSuffixArray builds a suffix array over text by prefix doubling.
// Construction is O(n log² n).
func NewSuffixArray(text string) *SuffixArray {
	n := len(text)
	s := &SuffixArray{text: text, sa: make([]int, n)}
	if n == 0 {
		return s
	}

	rank := make([]int, n)
	next := make([]int, n)
	for i := range s.sa {
		s.sa[i] = i
		rank[i] = int(text[i])
	}

	// second returns the rank k bytes further on, or -1 past the end.
	second := func(i, k int) int {
		if i+k < n {
			return rank[i+k]
		}
		return -1
	}

	for k := 1; ; k <<= 1 {
		sort.Slice(s.sa, func(a, b int) bool {
			x, y := s.sa[a], s.sa[b]
			if rank[x] != rank[y] {
				return rank[x] < rank[y]
			}
			return second(x, k) < second(y, k)
		})

		next[s.sa[0]] = 0
		for i := 1; i < n; i++ {
			prev, cur := s.sa[i-1], s.sa[i]
			next[cur] = next[prev]
			if rank[prev] != rank[cur] || second(prev, k) != second(cur, k) {
				next[cur]++
			}
		}
		rank, next = next, rank

		if rank[s.sa[n-1]] == n-1 || k >= n {
			break
		}
	}
	return s
}

// Len returns the length of the indexed text.
func (s *SuffixArray) Len() int {
	return len(s.text)
}

// Text returns the indexed text.
func (s *SuffixArray) Text() string {
	return s.text
}

// bounds returns the half-open range of sa whose suffixes start with pattern.
func (s *SuffixArray) bounds(pattern string) (int, int) {
	m := len(pattern)
	prefix := func(i int) string {
		suf := s.text[s.sa[i]:]
		if len(suf) > m {
			return suf[:m]
		}
		return suf
	}
	lo := sort.Search(len(s.sa), func(i int) bool { return prefix(i) >= pattern })
	hi := sort.Search(len(s.sa), func(i int) bool { return prefix(i) > pattern })
	return lo, hi
}

// Lookup returns the start offsets of every occurrence of pattern, ascending.
func (s *SuffixArray) Lookup(pattern string) []int {
	if pattern == "" || len(s.sa) == 0 {
		return nil
	}
	lo, hi := s.bounds(pattern)
	if lo >= hi {
		return nil
	}
	out := make([]int, hi-lo)
	copy(out, s.sa[lo:hi])
	sort.Ints(out)
	return out
}

// Count returns the number of occurrences of pattern.
func (s *SuffixArray) Count(pattern string) int {
	if pattern == "" || len(s.sa) == 0 {
		return 0
	}
	lo, hi := s.bounds(pattern)
	return hi - lo
}
