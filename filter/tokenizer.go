package filter

import (
	"regexp"
	"strings"
	"unicode"
)

// TermKind bestimmt, wie ein Term verglichen wird.
type TermKind int

const (
	// Contains vergleicht ohne Groß-/Kleinschreibung auf Teilstring.
	Contains TermKind = iota
	// Exact vergleicht auf Gleichheit (Term in Anführungszeichen).
	Exact
	// Pattern verlangt die Teile in Reihenfolge (Term mit Wildcard).
	Pattern
)

func (k TermKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Pattern:
		return "pattern"
	default:
		return "contains"
	}
}

// Term ist eine Alternative eines Textfilters.
type Term struct {
	Kind  TermKind
	Value string
	// Parts sind die Teilstücke zwischen den Wildcards (nur Pattern).
	Parts []string
}

// Regex liefert für Pattern-Terme den regulären Ausdruck ohne Beachtung der Groß-/Kleinschreibung.
func (t Term) Regex() string {
	quoted := make([]string, len(t.Parts))
	for i, p := range t.Parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return "(?i).*" + strings.Join(quoted, ".*") + ".*"
}

// TextOptions sind die Sonderzeichen der Filtersyntax.
type TextOptions struct {
	Quotes    string
	Separator rune
	Wildcard  rune
	Escape    rune
}

// DefaultTextOptions: "exakt", Alternativen mit Komma, * als Wildcard, \ als Escape.
var DefaultTextOptions = TextOptions{Quotes: `"`, Separator: ',', Wildcard: '*', Escape: '\\'}

// ParseTextFilter zerlegt einen Filterwert in Terme. Ein Anführungszeichen am
// Termanfang beginnt einen exakten Term, der erst an einem Anführungszeichen
// vor Trenner oder Textende schließt; mitten im Wort ist es ein normales Zeichen.
// Das Escape-Zeichen macht das folgende Zeichen immer literal.
func ParseTextFilter(s string, opts TextOptions) []Term {
	r := []rune(s)
	var terms []Term

	i := 0
	for i < len(r) {
		for i < len(r) && unicode.IsSpace(r[i]) {
			i++
		}
		if i >= len(r) {
			break
		}

		if strings.ContainsRune(opts.Quotes, r[i]) {
			var term Term
			term, i = scanQuoted(r, i, opts)
			if term.Value != "" {
				terms = append(terms, term)
			}
			continue
		}

		var term Term
		var ok bool
		term, ok, i = scanPlain(r, i, opts)
		if ok {
			terms = append(terms, term)
		}
	}
	return terms
}

// scanQuoted liest ab dem öffnenden Anführungszeichen bei r[start].
func scanQuoted(r []rune, start int, opts TextOptions) (Term, int) {
	quote := r[start]
	var b strings.Builder
	i := start + 1
	for i < len(r) {
		c := r[i]
		if c == opts.Escape && i+1 < len(r) {
			b.WriteRune(r[i+1])
			i += 2
			continue
		}
		if c == quote && closesQuote(r, i+1, opts) {
			i++
			// Whitespace bis zum Trenner überspringen, dann den Trenner selbst.
			for i < len(r) && r[i] != opts.Separator {
				i++
			}
			if i < len(r) {
				i++
			}
			return Term{Kind: Exact, Value: b.String()}, i
		}
		b.WriteRune(c)
		i++
	}
	return Term{Kind: Exact, Value: b.String()}, i
}

// closesQuote ist true, wenn ab pos nur Whitespace bis zu einem Trenner oder dem Ende folgt.
func closesQuote(r []rune, pos int, opts TextOptions) bool {
	for ; pos < len(r); pos++ {
		if r[pos] == opts.Separator {
			return true
		}
		if !unicode.IsSpace(r[pos]) {
			return false
		}
	}
	return true
}

// scanPlain liest einen Term ohne Anführungszeichen bis zum nächsten Trenner.
func scanPlain(r []rune, start int, opts TextOptions) (Term, bool, int) {
	var parts []string
	var b strings.Builder
	wildcard := false
	i := start
	for i < len(r) {
		c := r[i]
		if c == opts.Escape && i+1 < len(r) {
			b.WriteRune(r[i+1])
			i += 2
			continue
		}
		if c == opts.Separator {
			i++
			break
		}
		if c == opts.Wildcard {
			wildcard = true
			parts = append(parts, b.String())
			b.Reset()
			i++
			continue
		}
		b.WriteRune(c)
		i++
	}
	parts = append(parts, b.String())
	parts[0] = strings.TrimLeftFunc(parts[0], unicode.IsSpace)
	parts[len(parts)-1] = strings.TrimRightFunc(parts[len(parts)-1], unicode.IsSpace)

	if !wildcard {
		if parts[0] == "" {
			return Term{}, false, i
		}
		return Term{Kind: Contains, Value: parts[0]}, true, i
	}

	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Term{Kind: Pattern, Value: strings.Join(parts, string(opts.Wildcard)), Parts: kept}, true, i
}
