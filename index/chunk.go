package index

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"
)

// Chunk splits text into passages of at most size characters on whitespace
// boundaries. Consecutive passages repeat up to overlap trailing characters
// of their predecessor. A single word longer than size becomes its own passage.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end, length := start, 0
		for end < len(words) {
			add := utf8.RuneCountInString(words[end])
			if end > start {
				add++ // joining space
			}
			if end > start && length+add > size {
				break
			}
			length += add
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		next, carried := end, 0
		for next > start+1 {
			w := utf8.RuneCountInString(words[next-1]) + 1
			if carried+w > overlap {
				break
			}
			carried += w
			next--
		}
		start = next
	}
	return chunks
}

// minTermLength is the shortest query term kept, in runes.
const minTermLength = 3

// stopwords are common Italian and English words that carry no retrieval
// signal. Terms shorter than minTermLength are dropped before this check.
var stopwords = map[string]struct{}{
	"che": {}, "chi": {}, "con": {}, "per": {}, "tra": {}, "fra": {}, "una": {}, "uno": {},
	"del": {}, "dei": {}, "della": {}, "delle": {}, "degli": {}, "dello": {},
	"nel": {}, "nella": {}, "nelle": {}, "negli": {}, "sul": {}, "sulla": {},
	"alla": {}, "alle": {}, "agli": {}, "dal": {}, "dalla": {}, "dalle": {},
	"come": {}, "cosa": {}, "sono": {}, "essere": {}, "anche": {}, "questo": {},
	"questa": {}, "quello": {}, "quella": {}, "quale": {}, "quali": {}, "quando": {},
	"dove": {}, "perché": {}, "perche": {}, "più": {}, "piu": {}, "non": {}, "gli": {},
	"the": {}, "and": {}, "for": {}, "are": {}, "what": {}, "with": {}, "how": {},
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Terms lowercases text and returns its distinct searchable terms in order
// of first appearance.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWordRune(r) })
	kept := lo.Filter(fields, func(f string, _ int) bool {
		if utf8.RuneCountInString(f) < minTermLength {
			return false
		}
		_, stop := stopwords[f]
		return !stop
	})
	return lo.Uniq(kept)
}
