package matching

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are dropped during normalization. Negations ("not", "no") and
// temporal words ("before", "after") are kept on purpose: they change the
// question being asked.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "by": true, "be": true, "is": true, "are": true,
	"was": true, "were": true, "will": true, "with": true, "this": true,
	"that": true, "it": true, "its": true, "as": true, "from": true,
	"vs": true, "do": true, "does": true, "did": true, "has": true,
	"have": true, "what": true, "which": true, "who": true, "how": true,
	"s": true, "t": true,
}

// Title is the normalized form of a market title: a token multiset plus the
// entities (years and proper nouns) found in the original text.
type Title struct {
	tokens   map[string]int
	size     int
	entities map[string]bool
	years    map[string]bool
	// lead is a capitalised first word. It is not an entity by itself
	// since every title starts with a capital, but it counts when the
	// other title capitalises the same word mid-sentence.
	lead string
}

// Normalize case-folds title, strips punctuation, removes stop words and
// records entity tokens. A word counts as a proper noun when it starts with
// an upper-case letter and is not the first word of the title; a capitalised
// first word is kept aside as the title's lead.
func Normalize(title string) Title {
	t := Title{
		tokens:   make(map[string]int),
		entities: make(map[string]bool),
		years:    make(map[string]bool),
	}

	words := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, word := range words {
		tok := strings.ToLower(word)
		if stopWords[tok] {
			continue
		}
		t.tokens[tok]++
		t.size++

		switch {
		case isYear(tok):
			t.years[tok] = true
			t.entities[tok] = true
		case startsUpper(word) && i > 0:
			t.entities[tok] = true
		case startsUpper(word):
			t.lead = tok
		}
	}
	return t
}

// sharesEntity reports whether a and b name a common entity, counting either
// title's lead when the other marks the same word as an entity.
func sharesEntity(a, b Title) bool {
	if sharesAny(a.entities, b.entities) {
		return true
	}
	return (a.lead != "" && b.entities[a.lead]) || (b.lead != "" && a.entities[b.lead])
}

// Empty reports whether nothing survived normalization.
func (t Title) Empty() bool { return t.size == 0 }

// Tokens returns the distinct tokens in sorted order.
func (t Title) Tokens() []string {
	out := make([]string, 0, len(t.tokens))
	for tok := range t.tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Entities returns the entity tokens in sorted order.
func (t Title) Entities() []string {
	out := make([]string, 0, len(t.entities))
	for e := range t.entities {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func isYear(tok string) bool {
	if len(tok) != 4 {
		return false
	}
	n := 0
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return n >= 1900 && n <= 2199
}

func startsUpper(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}
