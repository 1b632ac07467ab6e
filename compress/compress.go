package compress

import "fmt"

// Compress kodiert und dekodiert Byte-Payloads (Cache-Einträge, Archiv-Uploads).
type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	// Name wird als Schlüsselpräfix und Dateiendung verwendet.
	Name() string
}

// ByName liefert den Codec zum konfigurierten Namen.
func ByName(name string) (Compress, error) {
	switch name {
	case "", "none", "nop":
		return NewNop(), nil
	case "gzip", "gz":
		return NewGZip(), nil
	case "lz4":
		return NewLZ4(), nil
	case "brotli", "br":
		return NewBrotli(), nil
	default:
		return nil, fmt.Errorf("compress: unknown codec %q", name)
	}
}
