package pubmed

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Foo (Bar) [Baz]", "Foo "},
		{"Plain title.", "Plain title."},
		{"Outer (inner (nested) still) after", "Outer after"},
		{"Stray) closing paren keeps text", "Stray closing paren keeps text"},
		{"a)) b (c) d", "a b d"},
		{"[Translated title (with note)].", "Translated title ."},
		{"[Part one] and [part two]", " and "},
		{"Parens [inside (brackets] stay) here", "Parens stay here"},
		{"Multiple   spaces\n and\ttabs", "Multiple spaces and tabs"},
		{"Cafe\u0301 au lait", "Caf\u00e9 au lait"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTitle(tc.in))
		})
	}
}

func TestFullName(t *testing.T) {
	name, collective := FullName(Author{ForeName: "Jane A", LastName: "Doe", Suffix: "Jr"}, 256)
	assert.Equal(t, "Jane A Doe Jr", name)
	assert.False(t, collective)

	name, _ = FullName(Author{Initials: "JA", LastName: "Doe"}, 256)
	assert.Equal(t, "J. A. Doe", name)

	name, _ = FullName(Author{LastName: "Doe"}, 256)
	assert.Equal(t, "Doe", name)

	name, collective = FullName(Author{CollectiveName: "  WHO  Study Group "}, 256)
	assert.Equal(t, "WHO Study Group", name)
	assert.True(t, collective)

	name, _ = FullName(Author{CollectiveName: Text(strings.Repeat("word ", 100))}, 64)
	assert.LessOrEqual(t, utf8.RuneCountInString(name), 64)
	assert.True(t, strings.HasSuffix(name, TruncationMarker))
}

func TestTruncateName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short enough", "Study Group", 20, "Study Group"},
		{"comma space preferred", "Alpha Beta, Gamma Delta Epsilon", 20, "Alpha Beta..."},
		{"ineligible comma falls back to space", "Alpha Beta, Gam Delta Epsil", 24, "Alpha Beta, Gam..."},
		{"plain comma over space", "Alpha Beta,Gamma Delta Epsilon", 20, "Alpha Beta..."},
		{"space fallback", "Alpha Beta Gamma Delta Epsilon", 20, "Alpha Beta Gamma..."},
		{"boundary below half", "ab cdefghijklmnop", 10, "ab cdef..."},
		{"no boundary", "Supercalifragilistic expial", 10, "Superca..."},
		{"semicolon", "First Group; Second Group Members", 20, "First Group..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateName(tc.in, tc.max)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), tc.max)
			if utf8.RuneCountInString(tc.in) > tc.max {
				assert.True(t, strings.HasSuffix(got, TruncationMarker))
			}
		})
	}
}

func TestMeshID(t *testing.T) {
	id, err := MeshID("D008875")
	assert.NoError(t, err)
	assert.Equal(t, int64(68008875), id)

	id, err = MeshID("C000591739")
	assert.NoError(t, err)
	assert.Equal(t, int64(67000591739), id)

	_, err = MeshID("008875")
	assert.Error(t, err)
	_, err = MeshID("Dabc")
	assert.Error(t, err)
}
