package documents

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

// Inspection errors.
var (
	ErrEmpty       = errors.New("document is empty")
	ErrTooLarge    = fmt.Errorf("document exceeds %d MiB", MaxSize>>20)
	ErrUnsupported = errors.New("unsupported document type")
	ErrUnreadable  = errors.New("document cannot be read")
)

var acceptedImages = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Info describes an accepted upload.
type Info struct {
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	// Pages is set for PDFs.
	Pages int `json:"pages,omitempty"`
}

// Inspect checks that data is a readable PDF with at least one page or a
// common image format. The content type is sniffed, never taken from name.
func Inspect(name string, data []byte) (Info, error) {
	size := int64(len(data))
	if size == 0 {
		return Info{}, ErrEmpty
	}
	if size > MaxSize {
		return Info{}, ErrTooLarge
	}

	ct := http.DetectContentType(data)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch {
	case ct == "application/pdf":
		pages, err := countPages(data)
		if err != nil {
			return Info{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
		}
		if pages < 1 {
			return Info{}, fmt.Errorf("%w: %s has no pages", ErrUnreadable, name)
		}
		return Info{ContentType: ct, Size: size, Pages: pages}, nil
	case acceptedImages[ct]:
		return Info{ContentType: ct, Size: size}, nil
	default:
		return Info{}, fmt.Errorf("%w: %s (%s)", ErrUnsupported, name, ct)
	}
}

// countPages opens the PDF in memory. The parser panics on some malformed
// input, so that is reported as an error.
func countPages(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}
