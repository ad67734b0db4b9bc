package ingestion_test

import (
	"strings"
	"testing"

	"github.com/fabfab/docchat/ingestion"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]ingestion.DocumentFormat{
		"notes.md":         ingestion.FormatMarkdown,
		"NOTES.MD":         ingestion.FormatMarkdown,
		"guide.markdown":   ingestion.FormatMarkdown,
		"report.pdf":       ingestion.FormatPDF,
		"table.csv":        ingestion.FormatCSV,
		"readme.txt":       ingestion.FormatText,
		"binary.exe":       ingestion.FormatUnknown,
		"no-extension":     ingestion.FormatUnknown,
		"dir/with/file.md": ingestion.FormatMarkdown,
	}
	for path, want := range cases {
		if got := ingestion.DetectFormat(path); got != want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExtractTitle(t *testing.T) {
	if got := ingestion.ExtractTitle("intro\n\n## Getting Started\ntext", "fallback"); got != "Getting Started" {
		t.Fatalf("unexpected title: %q", got)
	}
	if got := ingestion.ExtractTitle("no headings here", "fallback"); got != "fallback" {
		t.Fatalf("expected the fallback, got %q", got)
	}
}

func TestParseMarkdownKeepsContentAndTitle(t *testing.T) {
	doc, err := ingestion.Parse(ingestion.FormatMarkdown, "docs/raft.md", []byte("# Raft Overview\n\nLeaders serve one term."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Raft Overview" {
		t.Fatalf("unexpected title: %q", doc.Title)
	}
	if !strings.Contains(doc.Content, "Leaders serve one term.") {
		t.Fatalf("unexpected content: %q", doc.Content)
	}
}

func TestParseTextUsesFirstLineAsTitle(t *testing.T) {
	doc, err := ingestion.Parse(ingestion.FormatText, "notes/readme.txt", []byte("\n\nOperations Handbook\nRestart the broker first."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Operations Handbook" {
		t.Fatalf("unexpected title: %q", doc.Title)
	}

	doc, err = ingestion.Parse(ingestion.FormatText, "notes/readme.txt", []byte("   \n  "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "readme" {
		t.Fatalf("expected the file name fallback, got %q", doc.Title)
	}
}

func TestParseCSVTurnsRowsIntoSentences(t *testing.T) {
	payload := "name,role\nada,engineer\ngrace,admiral\n"
	doc, err := ingestion.Parse(ingestion.FormatCSV, "people.csv", []byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "people" {
		t.Fatalf("unexpected title: %q", doc.Title)
	}
	paragraphs := strings.Split(doc.Content, "\n\n")
	if len(paragraphs) != 2 {
		t.Fatalf("expected one paragraph per data row, got %d", len(paragraphs))
	}
	if paragraphs[0] != "Row 1. name: ada. role: engineer." {
		t.Fatalf("unexpected row rendering: %q", paragraphs[0])
	}
}

func TestParseCSVRejectsMalformedPayload(t *testing.T) {
	if _, err := ingestion.Parse(ingestion.FormatCSV, "broken.csv", []byte("a,\"b\nc")); err == nil {
		t.Fatal("expected error for malformed csv")
	}
}

func TestParseUnknownFormatFails(t *testing.T) {
	if _, err := ingestion.Parse(ingestion.FormatUnknown, "mystery.bin", []byte("data")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
