package chunking

import (
	"strings"
	"testing"
)

func TestFlattenMarkdown_StripsMarkup(t *testing.T) {
	source := []byte("# VAT Guide\n\nRegistration is **mandatory** above the *threshold*.\n\n- monthly returns\n- annual declaration\n")

	got := FlattenMarkdown(source)

	for _, markup := range []string{"#", "**", "*", "- "} {
		if strings.Contains(got, markup) {
			t.Errorf("Flattened text still contains %q: %q", markup, got)
		}
	}
	for _, want := range []string{"VAT Guide", "Registration is mandatory above the threshold.", "monthly returns", "annual declaration"} {
		if !strings.Contains(got, want) {
			t.Errorf("Flattened text missing %q: %q", want, got)
		}
	}
}

func TestFlattenMarkdown_BlockBoundariesBecomeBlankLines(t *testing.T) {
	source := []byte("# Heading\n\nFirst paragraph.\n\nSecond paragraph.")

	got := FlattenMarkdown(source)

	// The paragraph splitter must see each block separately.
	paragraphs := splitParagraphs(got)
	if len(paragraphs) != 3 {
		t.Fatalf("Expected 3 paragraphs, got %d: %q", len(paragraphs), got)
	}
	if paragraphs[0].text != "Heading" {
		t.Errorf("First paragraph: expected %q, got %q", "Heading", paragraphs[0].text)
	}
}

func TestFlattenMarkdown_SoftLineBreaksBecomeSpaces(t *testing.T) {
	source := []byte("line one\nline two")

	got := FlattenMarkdown(source)
	if got != "line one line two" {
		t.Errorf("Expected joined line, got %q", got)
	}
}

func TestFlattenMarkdown_KeepsCodeContent(t *testing.T) {
	source := []byte("Use the `vat_rate` field.\n\n```\nrate = 0.18\n```\n")

	got := FlattenMarkdown(source)
	if !strings.Contains(got, "vat_rate") {
		t.Errorf("Inline code content missing: %q", got)
	}
	if !strings.Contains(got, "rate = 0.18") {
		t.Errorf("Code block content missing: %q", got)
	}
	if strings.Contains(got, "`") {
		t.Errorf("Backticks survived flattening: %q", got)
	}
}

func TestFlattenMarkdown_Empty(t *testing.T) {
	if got := FlattenMarkdown(nil); got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
}
