package files

import (
	"strings"
	"testing"
)

func TestScanTextFile(t *testing.T) {
	s := &LocalScanner{}
	content := strings.Repeat("rent due monthly per clause ", 100) // 500 words

	res, err := s.Scan("lease.txt", "text/plain", []byte(content))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsSuitable {
		t.Fatalf("expected suitable, got reason %q", res.Reason)
	}
	if res.WordCount != 500 {
		t.Fatalf("WordCount = %d, want 500", res.WordCount)
	}
	if res.PageCount != 2 {
		t.Fatalf("PageCount = %d, want 2 (250 words/page)", res.PageCount)
	}
}

func TestScanEmptyFile(t *testing.T) {
	s := &LocalScanner{}
	res, err := s.Scan("empty.txt", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuitable {
		t.Fatal("empty file must be unsuitable")
	}
}

func TestScanWhitespaceOnlyText(t *testing.T) {
	s := &LocalScanner{}
	res, err := s.Scan("blank.txt", "text/plain", []byte("   \n\t  "))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuitable {
		t.Fatalf("whitespace-only file must be unsuitable, got %+v", res)
	}
}

func TestScanUnsupportedType(t *testing.T) {
	s := &LocalScanner{}
	res, err := s.Scan("photo.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuitable {
		t.Fatal("image must be unsuitable")
	}
	if !strings.Contains(res.Reason, "unsupported") {
		t.Fatalf("Reason = %q, want unsupported file type", res.Reason)
	}
}

func TestScanCorruptPDF(t *testing.T) {
	s := &LocalScanner{}
	res, err := s.Scan("broken.pdf", "application/pdf", []byte("not a pdf at all"))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuitable {
		t.Fatal("corrupt PDF must be unsuitable")
	}
}

func TestScanTruncatesLongContent(t *testing.T) {
	s := &LocalScanner{MaxChars: 100}
	content := strings.Repeat("word ", 200)

	res, err := s.Scan("long.txt", "text/plain", []byte(content))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) > 100 {
		t.Fatalf("Content length = %d, want <= 100", len(res.Content))
	}
	if !res.IsSuitable {
		t.Fatal("truncated file should still be suitable")
	}
}
