package pubmed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrMedlineDate = errors.New("pubmed: unparseable date")

var seasons = map[string]bool{
	"winter": true,
	"spring": true,
	"summer": true,
	"autumn": true,
	"fall":   true,
}

var monthAbbrevs = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseMedlineDate interpretiert das Freitextfeld <MedlineDate>, z.B.
// "1998 Dec-1999 Jan", "1975, 1977" oder "Summer-Fall 1977".
func ParseMedlineDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		for _, part := range strings.Split(s, ",") {
			if t, err := ParseMedlineDate(part); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrMedlineDate, s)
	}

	if left, right, ok := strings.Cut(s, "-"); ok {
		lt := strings.Fields(left)
		if t, err := parseDateTokens(lt); err == nil {
			return t, nil
		}
		// Rechte Seite mit den führenden Tokens der linken auffüllen ("2000 Foo-Dec" -> "2000 Dec").
		rt := strings.Fields(right)
		if len(rt) < len(lt) {
			rt = append(append([]string(nil), lt[:len(lt)-len(rt)]...), rt...)
		}
		t, err := parseDateTokens(rt)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMedlineDate, s)
		}
		return t, nil
	}

	t, err := parseDateTokens(strings.Fields(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMedlineDate, s)
	}
	return t, nil
}

// parseDateTokens liest [Jahr, Monat, Tag]. Jahreszeiten werden entfernt und
// reduzieren das Datum auf das Jahr; ein ungültiger Tag ergibt den Monatsersten.
func parseDateTokens(tokens []string) (time.Time, error) {
	seasonal := false
	kept := tokens[:0:0]
	for _, tok := range tokens {
		if seasons[strings.ToLower(tok)] {
			seasonal = true
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return time.Time{}, ErrMedlineDate
	}

	year, err := strconv.Atoi(kept[0])
	if err != nil || year < 1000 || year > 9999 {
		return time.Time{}, ErrMedlineDate
	}
	if seasonal || len(kept) == 1 {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}

	month, ok := parseMonth(kept[1])
	if !ok {
		return time.Time{}, ErrMedlineDate
	}
	day := 1
	if len(kept) > 2 {
		if d, err := strconv.Atoi(kept[2]); err == nil && d >= 1 && d <= daysIn(year, month) {
			day = d
		}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}

func parseMonth(s string) (time.Month, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, false
		}
		return time.Month(n), true
	}
	if len(s) < 3 {
		return 0, false
	}
	m, ok := monthAbbrevs[strings.ToLower(s[:3])]
	return m, ok
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PublicationDate liest <PubDate>; fehlt Year, wird MedlineDate geparst.
func PublicationDate(d PubDate) (*time.Time, error) {
	var (
		t   time.Time
		err error
	)
	switch {
	case d.Year != "":
		tokens := []string{d.Year}
		if d.Season != "" {
			tokens = append(tokens, d.Season)
		}
		for _, tok := range []string{d.Month, d.Day} {
			if tok != "" {
				tokens = append(tokens, tok)
			}
		}
		t, err = parseDateTokens(tokens)
		if err != nil {
			err = fmt.Errorf("%w: %q", ErrMedlineDate, strings.Join(tokens, " "))
		}
	case d.MedlineDate != "":
		t, err = ParseMedlineDate(d.MedlineDate)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
