package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"studykit-backend/internal/models"
)

// Format labels stored in ExtractedDocument.Metadata["format"].
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatText = "text"
)

type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

// Extract turns raw document bytes into plain text plus page metadata.
// A well-formed document without text yields an empty Text, not an error.
func (s *FileExtractService) Extract(data []byte) (*models.ExtractedDocument, error) {
	if len(data) == 0 {
		return nil, &ExtractionError{Reason: "empty document"}
	}

	switch detectFormat(data) {
	case FormatPDF:
		return s.extractPDF(data)
	case FormatDOCX:
		return s.extractDOCX(data)
	case FormatText:
		return s.extractTXT(data), nil
	default:
		return nil, &ExtractionError{Reason: "unsupported document format"}
	}
}

func detectFormat(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatDOCX
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
		// Don't reject a multi-byte rune cut at the sample boundary.
		for i := 0; i < utf8.UTFMax && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if utf8.Valid(sample) && !bytes.ContainsRune(sample, 0) {
		return FormatText
	}
	return ""
}

func (s *FileExtractService) extractTXT(data []byte) *models.ExtractedDocument {
	raw := string(data)
	return &models.ExtractedDocument{
		Text:      normalizeExtractedText(raw),
		PageCount: strings.Count(raw, "\f") + 1,
		Metadata:  map[string]string{"format": FormatText},
	}
}

func (s *FileExtractService) extractPDF(data []byte) (doc *models.ExtractedDocument, err error) {
	// The pdf package panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &ExtractionError{Reason: "malformed pdf", Err: fmt.Errorf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Reason: "malformed pdf", Err: err}
	}

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	meta := map[string]string{"format": FormatPDF}
	info := reader.Trailer().Key("Info")
	for key, field := range map[string]string{"title": "Title", "author": "Author", "producer": "Producer"} {
		if v := strings.TrimSpace(info.Key(field).Text()); v != "" {
			meta[key] = v
		}
	}

	return &models.ExtractedDocument{
		Text:      normalizeExtractedText(b.String()),
		PageCount: totalPage,
		Metadata:  meta,
	}, nil
}

func (s *FileExtractService) extractDOCX(data []byte) (*models.ExtractedDocument, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Reason: "malformed docx", Err: err}
	}

	parts := make(map[string][]byte, 3)
	for _, f := range r.File {
		switch f.Name {
		case "word/document.xml", "docProps/app.xml", "docProps/core.xml":
			b, err := readZipFile(f)
			if err != nil {
				return nil, &ExtractionError{Reason: "malformed docx", Err: err}
			}
			parts[f.Name] = b
		}
	}

	documentXML, ok := parts["word/document.xml"]
	if !ok {
		return nil, &ExtractionError{Reason: "docx document.xml not found"}
	}

	meta := map[string]string{"format": FormatDOCX}
	pageCount := 1

	var app struct {
		Pages string `xml:"Pages"`
	}
	if xml.Unmarshal(parts["docProps/app.xml"], &app) == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(app.Pages)); err == nil && n > 0 {
			pageCount = n
		}
	}

	var core struct {
		Title   string `xml:"title"`
		Creator string `xml:"creator"`
	}
	if xml.Unmarshal(parts["docProps/core.xml"], &core) == nil {
		if t := strings.TrimSpace(core.Title); t != "" {
			meta["title"] = t
		}
		if c := strings.TrimSpace(core.Creator); c != "" {
			meta["author"] = c
		}
	}

	return &models.ExtractedDocument{
		Text:      normalizeExtractedText(stripDOCXML(documentXML)),
		PageCount: pageCount,
		Metadata:  meta,
	}, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func stripDOCXML(src []byte) string {
	s := string(src)

	// DOCX paragraphs and line breaks
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = strings.ReplaceAll(s, "<w:br/>", "\n")
	s = strings.ReplaceAll(s, "<w:br />", "\n")
	s = strings.ReplaceAll(s, "<w:tab/>", "\t")

	s = xmlTagPattern.ReplaceAllString(s, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
	return replacer.Replace(s)
}

func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")

	lines := strings.Split(s, "\n")
	buf := bytes.Buffer{}

	emptyCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}
