package pubmed

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TruncationMarker wird an gekürzte Gruppennamen angehängt.
const TruncationMarker = "..."

var whitespaceRE = regexp.MustCompile(`\s+`)

func normalizeUnicode(s string) string {
	t := transform.Chain(norm.NFC)
	normalized, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return normalized
}

// collapseWhitespace fasst Whitespace-Folgen zu einem Leerzeichen zusammen, ohne zu trimmen.
func collapseWhitespace(s string) string {
	return whitespaceRE.ReplaceAllString(s, " ")
}

// NormalizeTitle entfernt [...]-Gruppen und (...)-Gruppen. Eine schließende
// Klammer ohne öffnende wird verworfen, der folgende Text bleibt erhalten.
// Vollständig eingeklammerte Übersetzungstitel ("[Title]." ) werden zuerst ausgepackt.
func NormalizeTitle(s string) string {
	s = unwrapTranslated(s)

	var b strings.Builder
	square, round := 0, 0
	for _, r := range s {
		switch r {
		case '[':
			square++
			continue
		case ']':
			if square > 0 {
				square--
			}
			continue
		}
		if square > 0 {
			continue
		}
		switch r {
		case '(':
			round++
		case ')':
			if round > 0 {
				round--
			}
		default:
			if round <= 0 {
				b.WriteRune(r)
			}
		}
	}
	return normalizeUnicode(collapseWhitespace(b.String()))
}

// unwrapTranslated packt "[...]" bzw. "[...]." aus, wenn die äußere Klammer den ganzen Titel umschließt.
func unwrapTranslated(s string) string {
	t := strings.TrimSpace(s)
	suffix := ""
	if strings.HasSuffix(t, "].") {
		t, suffix = strings.TrimSuffix(t, "."), "."
	}
	if !strings.HasPrefix(t, "[") || !strings.HasSuffix(t, "]") {
		return s
	}
	depth := 0
	for i, r := range t {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 && i != len(t)-1 {
				return s
			}
		}
	}
	return t[1:len(t)-1] + suffix
}

// FullName rendert "Vorname Nachname Suffix", ersatzweise die Initialen als
// "J. A.", oder den Gruppennamen. Lange Gruppennamen werden gekürzt.
func FullName(a Author, maxCollective int) (name string, collective bool) {
	if c := strings.TrimSpace(collapseWhitespace(string(a.CollectiveName))); c != "" {
		return normalizeUnicode(TruncateName(c, maxCollective)), true
	}

	first := strings.TrimSpace(a.ForeName)
	if first == "" {
		first = renderInitials(a.Initials)
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{first, strings.TrimSpace(a.LastName), strings.TrimSpace(a.Suffix)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return normalizeUnicode(collapseWhitespace(strings.Join(parts, " "))), false
}

func renderInitials(initials string) string {
	var parts []string
	for _, r := range initials {
		if unicode.IsLetter(r) {
			parts = append(parts, string(r)+".")
		}
	}
	return strings.Join(parts, " ")
}

var truncationBoundaries = [][]string{
	{", ", ": ", "; "},
	{",", ":", ";"},
	{" "},
}

// TruncateName kürzt name auf höchstens max Zeichen inklusive Marker. Bevorzugt
// wird die letzte Grenze der stärksten Klasse, sofern sie mindestens bei max/2 liegt.
func TruncateName(name string, max int) string {
	if max <= 0 || utf8.RuneCountInString(name) <= max {
		return name
	}
	cutoff := max - utf8.RuneCountInString(TruncationMarker)
	if cutoff < 0 {
		cutoff = 0
	}
	head := string([]rune(name)[:cutoff])

	for _, class := range truncationBoundaries {
		best := -1
		for _, sep := range class {
			if i := strings.LastIndex(head, sep); i > best {
				best = i
			}
		}
		if best >= 0 && utf8.RuneCountInString(head[:best]) >= max/2 {
			return head[:best] + TruncationMarker
		}
	}
	return head + TruncationMarker
}
