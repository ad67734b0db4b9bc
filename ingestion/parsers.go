package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ParsedDocument is raw text extracted from one file, before chunking.
type ParsedDocument struct {
	Title   string
	Content string
}

// Parse extracts plain text from a file payload according to its format.
func Parse(format DocumentFormat, path string, data []byte) (ParsedDocument, error) {
	switch format {
	case FormatMarkdown:
		return parseMarkdown(path, data), nil
	case FormatText:
		return parseText(path, data), nil
	case FormatPDF:
		return parsePDF(path, data)
	case FormatCSV:
		return parseCSV(path, data)
	default:
		return ParsedDocument{}, fmt.Errorf("unsupported document format for %s", path)
	}
}

func parseMarkdown(path string, data []byte) ParsedDocument {
	content := string(data)
	return ParsedDocument{
		Title:   ExtractTitle(content, filepath.Base(path)),
		Content: content,
	}
}

func parseText(path string, data []byte) ParsedDocument {
	content := string(data)
	title := firstNonEmptyLine(content)
	if title == "" {
		title = baseName(path)
	}
	return ParsedDocument{Title: title, Content: content}
}

func parsePDF(path string, data []byte) (ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ParsedDocument{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return ParsedDocument{}, fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return ParsedDocument{}, fmt.Errorf("read pdf text: %w", err)
	}

	content := buf.String()
	title := firstNonEmptyLine(content)
	if title == "" {
		title = baseName(path)
	}
	return ParsedDocument{Title: title, Content: content}, nil
}

func parseCSV(path string, data []byte) (ParsedDocument, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return ParsedDocument{}, fmt.Errorf("parse csv: %w", err)
	}

	title := baseName(path)
	if len(records) == 0 {
		return ParsedDocument{Title: title}, nil
	}

	headers := records[0]
	rows := records[1:]

	paragraphs := make([]string, 0, len(rows))
	for idx, row := range rows {
		paragraphs = append(paragraphs, formatCSVRow(headers, row, idx))
	}

	return ParsedDocument{
		Title:   title,
		Content: strings.Join(paragraphs, "\n\n"),
	}, nil
}

// ExtractTitle returns the first markdown heading, or the fallback when the
// content has none.
func ExtractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return fallback
}

func formatCSVRow(headers, row []string, idx int) string {
	builder := &strings.Builder{}
	builder.WriteString(fmt.Sprintf("Row %d.", idx+1))

	limit := len(headers)
	if len(row) < limit {
		limit = len(row)
	}

	for i := 0; i < limit; i++ {
		header := strings.TrimSpace(headers[i])
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		builder.WriteString(fmt.Sprintf(" %s: %s.", header, strings.TrimSpace(row[i])))
	}

	for i := len(headers); i < len(row); i++ {
		builder.WriteString(fmt.Sprintf(" Extra %d: %s.", i+1, strings.TrimSpace(row[i])))
	}

	return builder.String()
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
