package compress

import (
	"bytes"

	"github.com/andybalholm/brotli"
)

// Brotli komprimiert dichter als gzip; gedacht für Archiv-Uploads.
type Brotli struct {
	Level int
}

func NewBrotli() Brotli {
	return Brotli{Level: brotli.DefaultCompression}
}

func (b Brotli) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, b.Level)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b Brotli) Decode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(brotli.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b Brotli) Name() string { return "br" }
