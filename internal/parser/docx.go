package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

const docxMediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// parseDOCX extracts paragraph text from a DOCX archive by walking the
// WordprocessingML in word/document.xml. Text runs within a paragraph are
// concatenated; paragraphs become lines.
func parseDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", decodeFailure(docxMediaType, "open docx archive: %v", err)
	}
	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", decodeFailure(docxMediaType, "open document.xml: %v", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", decodeFailure(docxMediaType, "missing word/document.xml")
	}
	defer docXML.Close()

	text, err := extractWordText(docXML)
	if err != nil {
		return "", decodeFailure(docxMediaType, "decode document.xml: %v", err)
	}
	return text, nil
}

// extractWordText streams the XML token-wise rather than unmarshalling the
// full WordprocessingML schema: only <w:p> boundaries and <w:t> character
// data matter for plain text.
func extractWordText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
