package analyzer

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	questionRegex   = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|which|can|could|does|do|did|is|are|should|will|would)\b`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "with": true, "at": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "it": true, "its": true,
	"this": true, "that": true, "your": true, "you": true, "our": true, "we": true, "how": true,
	"what": true, "why": true, "do": true, "does": true, "can": true, "i": true, "my": true,
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’'
}

// words splits text into word tokens, dropping punctuation-only fragments
func words(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) })
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'’")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func countWords(s string) int {
	return len(words(s))
}

// countSentences counts terminal-punctuation sentences. Text with words but no
// terminator counts as one sentence.
func countSentences(s string) int {
	count := 0
	pendingWords := false
	runes := []rune(s)
	for i, r := range runes {
		if isWordRune(r) {
			pendingWords = true
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Only close at the end of a punctuation run followed by space or end of text
		if i+1 < len(runes) {
			next := runes[i+1]
			if next == '.' || next == '!' || next == '?' || !unicode.IsSpace(next) {
				continue
			}
		}
		if pendingWords {
			count++
			pendingWords = false
		}
	}
	if pendingWords {
		count++
	}
	return count
}

// syllables estimates English syllables by counting vowel groups
func syllables(word string) int {
	w := strings.ToLower(word)
	if len(w) <= 3 {
		return 1
	}
	count := 0
	prevVowel := false
	for _, r := range w {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	if strings.HasSuffix(w, "es") || strings.HasSuffix(w, "ed") {
		if count > 1 && !strings.HasSuffix(w, "ted") && !strings.HasSuffix(w, "ded") {
			count--
		}
	}
	if count < 1 {
		count = 1
	}
	return count
}

func letterCount(word string) int {
	n := 0
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// normalizePhrase lower-cases, strips punctuation and collapses whitespace
func normalizePhrase(s string) string {
	return strings.Join(words(strings.ToLower(s)), " ")
}

func isQuestion(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return strings.HasSuffix(t, "?") || questionRegex.MatchString(t)
}

// stem reduces a word to its Porter2 stem. Stop words come back lower-cased
// but otherwise untouched.
func stem(word string) string {
	return english.Stem(word, false)
}

func stemSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range words(text) {
		set[stem(w)] = true
	}
	return set
}

// containsKeyword matches a keyword phrase by case-insensitive substring, or by
// every significant keyword term appearing in stemmed form.
func containsKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(keyword)) {
		return true
	}
	terms := significantTerms(keyword)
	if len(terms) == 0 {
		return false
	}
	stems := stemSet(lower)
	for _, t := range terms {
		if !stems[stem(t)] {
			return false
		}
	}
	return true
}

func significantTerms(phrase string) []string {
	all := words(strings.ToLower(phrase))
	var terms []string
	for _, w := range all {
		if !stopWords[w] {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return all
	}
	return terms
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
