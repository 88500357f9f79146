package documents

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestInspect_PDF(t *testing.T) {
	info, err := Inspect("lease.pdf", minimalPDF())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ContentType != "application/pdf" || info.Pages != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestInspect_Image(t *testing.T) {
	info, err := Inspect("id.png", pngHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ContentType != "image/png" || info.Pages != 0 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestInspect_Rejects(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"too large", append(append([]byte{}, pngHeader...), make([]byte, MaxSize)...), ErrTooLarge},
		{"text", []byte("just some notes"), ErrUnsupported},
		{"broken pdf", []byte("%PDF-1.4\nthis is not really a pdf"), ErrUnreadable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Inspect(tc.name, tc.data); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}
