package ftp

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pubmed-graph/providers"
)

const (
	dataSuffix = ".xml.gz"
	hashSuffix = ".xml.gz.md5"
	// PartialSuffix markiert eine noch unvollständige Datendatei.
	PartialSuffix = ".downloading"
)

var (
	ErrMissingPair  = errors.New("ftp: data file without checksum or checksum without data file")
	ErrHashMismatch = errors.New("ftp: md5 mismatch")
	ErrBadChecksum  = errors.New("ftp: unreadable checksum file")
	checksumPattern = regexp.MustCompile(`MD5\((.+)\)=\s*([0-9a-fA-F]{32})`)
)

// ParseChecksum liest eine Zeile der Form "MD5(<name>)= <hex>".
func ParseChecksum(content []byte) (name, digest string, err error) {
	m := checksumPattern.FindSubmatch(content)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrBadChecksum, strings.TrimSpace(string(content)))
	}
	return string(m[1]), strings.ToLower(string(m[2])), nil
}

// MatchPairs ordnet Datendateien ihren Prüfsummendateien zu. Andere Einträge
// werden ignoriert; fehlt eine Hälfte, bricht die Zuordnung ab.
func MatchPairs(files []providers.File) ([]providers.Pair, error) {
	data := make(map[string]providers.File)
	hashes := make(map[string]providers.File)
	for _, f := range files {
		switch {
		case strings.HasSuffix(f.Name, hashSuffix):
			hashes[strings.TrimSuffix(f.Name, ".md5")] = f
		case strings.HasSuffix(f.Name, dataSuffix):
			data[f.Name] = f
		}
	}

	pairs := make([]providers.Pair, 0, len(data))
	for name, d := range data {
		h, ok := hashes[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPair, name)
		}
		pairs = append(pairs, providers.Pair{Data: d, Hash: h})
		delete(hashes, name)
	}
	for name := range hashes {
		return nil, fmt.Errorf("%w: %s", ErrMissingPair, name+".md5")
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Data.Name < pairs[j].Data.Name })
	return pairs, nil
}

// PairError ist der endgültige Fehler eines Paares nach Ausschöpfen aller Versuche.
type PairError struct {
	Pair     providers.Pair
	Attempts int
	Err      error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("ftp: %s failed after %d attempts: %v", e.Pair.Data.Name, e.Attempts, e.Err)
}

func (e *PairError) Unwrap() error { return e.Err }
