package files

import (
	"bytes"
	"fmt"
	"strings"

	pdf "rsc.io/pdf"
)

// ScanResult carries what the upload pipeline needs to know about a file
// before charging tokens: counts for the cost formula, extracted text for the
// analysis call and a suitability verdict.
type ScanResult struct {
	Content    string
	PageCount  int
	WordCount  int
	IsSuitable bool
	Reason     string
}

// Scanner reports page/word counts and analysis suitability for an uploaded
// file. The default implementation scans locally; tests inject fakes.
type Scanner interface {
	Scan(name, contentType string, data []byte) (*ScanResult, error)
}

// LocalScanner extracts text from PDFs and plain-text files in process.
type LocalScanner struct {
	// MaxChars caps extracted content; defaults to 12000 (~2-3k tokens) to
	// avoid blowing the analysis context window.
	MaxChars int
}

const (
	defaultMaxChars = 12000
	wordsPerPage    = 250
)

func (s *LocalScanner) Scan(name, contentType string, data []byte) (*ScanResult, error) {
	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if len(data) == 0 {
		return &ScanResult{Reason: "file is empty"}, nil
	}

	switch {
	case contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(name), ".pdf"):
		return scanPDF(data, maxChars)
	case strings.HasPrefix(contentType, "text/") || strings.HasSuffix(strings.ToLower(name), ".txt"):
		return scanText(string(data), maxChars), nil
	}
	return &ScanResult{Reason: fmt.Sprintf("unsupported file type %q", contentType)}, nil
}

func scanPDF(data []byte, maxChars int) (res *ScanResult, err error) {
	// The parser panics on some malformed files; uploads are untrusted.
	defer func() {
		if r := recover(); r != nil {
			res = &ScanResult{Reason: "file could not be parsed as PDF"}
			err = nil
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &ScanResult{Reason: "file could not be parsed as PDF"}, nil
	}

	var buf bytes.Buffer
	total := r.NumPage()
	for pageIndex := 1; pageIndex <= total; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			buf.WriteString(t.S)
			buf.WriteByte(' ')
		}
		buf.WriteString("\n\n")
		if buf.Len() >= maxChars {
			break
		}
	}

	content := buf.String()
	if len(content) > maxChars {
		content = content[:maxChars]
	}
	words := countWords(content)
	if words == 0 {
		// No text layer: the analysis call would have nothing to work with.
		return &ScanResult{PageCount: total, Reason: "PDF has no extractable text"}, nil
	}
	return &ScanResult{
		Content:    content,
		PageCount:  total,
		WordCount:  words,
		IsSuitable: true,
	}, nil
}

func scanText(content string, maxChars int) *ScanResult {
	if len(content) > maxChars {
		content = content[:maxChars]
	}
	words := countWords(content)
	if words == 0 {
		return &ScanResult{Reason: "file contains no text"}
	}
	pages := (words + wordsPerPage - 1) / wordsPerPage
	if pages < 1 {
		pages = 1
	}
	return &ScanResult{
		Content:    content,
		PageCount:  pages,
		WordCount:  words,
		IsSuitable: true,
	}
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
