// Package docx loads the body paragraphs of a Word document as extractor
// blocks. Only the heading-tier convention of the activity log is
// understood: "Heading 1" paragraphs are top headings, "Heading 2" and
// "Heading 3" are sub-headings, everything else is body text.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pwsvc/internal/extract"
)

const (
	documentPart = "word/document.xml"
	stylesPart   = "word/styles.xml"
)

// ErrNotDocx is returned when the archive has no main document part.
var ErrNotDocx = errors.New("not a docx document")

// Paragraph is a body paragraph with its resolved style name.
type Paragraph struct {
	Style string
	Text  string
}

// Load opens path and returns its paragraphs as blocks in document order.
func Load(path string) ([]extract.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Parse(data)
}

// Parse decodes a docx archive held in memory.
func Parse(data []byte) ([]extract.Block, error) {
	paras, err := ReadParagraphs(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	blocks := make([]extract.Block, 0, len(paras))
	for _, p := range paras {
		blocks = append(blocks, ToBlock(p))
	}
	return blocks, nil
}

// ReadParagraphs returns the top-level body paragraphs of the archive.
func ReadParagraphs(r io.ReaderAt, size int64) ([]Paragraph, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx archive: %w", err)
	}

	var docFile, styleFile *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case documentPart:
			docFile = f
		case stylesPart:
			styleFile = f
		}
	}
	if docFile == nil {
		return nil, ErrNotDocx
	}

	names := map[string]string{}
	if styleFile != nil {
		names, err = readPart(styleFile, decodeStyleNames)
		if err != nil {
			return nil, fmt.Errorf("failed to parse styles: %w", err)
		}
	}

	paras, err := readPart(docFile, decodeParagraphs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document body: %w", err)
	}
	for i := range paras {
		if name, ok := names[paras[i].Style]; ok {
			paras[i].Style = name
		}
	}
	return paras, nil
}

// ToBlock maps a paragraph style onto an extractor role.
func ToBlock(p Paragraph) extract.Block {
	switch normalizeStyle(p.Style) {
	case "heading1":
		return extract.Block{Role: extract.TopHeading, Text: p.Text}
	case "heading2":
		return extract.Block{Role: extract.SubHeading, Text: p.Text, Level: 2}
	case "heading3":
		return extract.Block{Role: extract.SubHeading, Text: p.Text, Level: 3}
	default:
		return extract.Block{Role: extract.Body, Text: p.Text}
	}
}

// normalizeStyle folds "Heading 1", "heading 1" and the style id "Heading1"
// onto the same key.
func normalizeStyle(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

func readPart[T any](f *zip.File, decode func(io.Reader) (T, error)) (T, error) {
	rc, err := f.Open()
	if err != nil {
		var zero T
		return zero, err
	}
	defer rc.Close()
	return decode(rc)
}

// decodeStyleNames maps paragraph style ids to display names.
func decodeStyleNames(r io.Reader) (map[string]string, error) {
	var doc struct {
		Styles []struct {
			Type string `xml:"type,attr"`
			ID   string `xml:"styleId,attr"`
			Name struct {
				Val string `xml:"val,attr"`
			} `xml:"name"`
		} `xml:"style"`
	}
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	names := make(map[string]string, len(doc.Styles))
	for _, s := range doc.Styles {
		if s.Type != "paragraph" || s.Name.Val == "" {
			continue
		}
		names[s.ID] = s.Name.Val
	}
	return names, nil
}

// decodeParagraphs streams document.xml and collects paragraphs that are
// direct children of the body. Table cells and text boxes are skipped.
func decodeParagraphs(r io.Reader) ([]Paragraph, error) {
	dec := xml.NewDecoder(r)
	var (
		stack  []string
		paras  []Paragraph
		cur    *Paragraph
		text   strings.Builder
		depth  int // stack depth of the open body paragraph
		nested int // paragraphs open inside it (text boxes)
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			stack = append(stack, t.Name.Local)

			if t.Name.Local == "p" {
				switch {
				case parent == "body":
					cur = &Paragraph{}
					text.Reset()
					depth = len(stack)
				case cur != nil:
					nested++
				}
				continue
			}
			if cur == nil || nested > 0 {
				continue
			}
			switch t.Name.Local {
			case "pStyle":
				if parent == "pPr" && len(stack) == depth+2 {
					cur.Style = attr(t, "val")
				}
			case "t":
				if parent != "r" {
					continue
				}
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, err
				}
				text.WriteString(s)
				stack = stack[:len(stack)-1]
			case "tab":
				if parent == "r" {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if parent == "r" {
					text.WriteByte('\n')
				}
			}

		case xml.EndElement:
			if cur != nil && t.Name.Local == "p" {
				switch {
				case len(stack) == depth:
					cur.Text = text.String()
					paras = append(paras, *cur)
					cur = nil
				case nested > 0:
					nested--
				}
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return paras, nil
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
