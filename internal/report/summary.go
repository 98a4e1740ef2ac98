package report

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/vigil/internal/model"
)

// Summarize renders a detected change set as a short human-readable
// line for log rows and reports.
func Summarize(change *model.DetectedChange) string {
	if change == nil || len(change.Changes) == 0 {
		return "No changes detected"
	}

	parts := make([]string, 0, len(change.Changes))
	for _, c := range change.Changes {
		parts = append(parts, summarizeRecord(c))
	}
	return strings.Join(parts, "; ")
}

func summarizeRecord(c model.ChangeRecord) string {
	d := c.Details
	switch c.ChangeType {
	case model.ChangeFirstDetection:
		return "First detection"
	case model.ChangeStatus:
		return fmt.Sprintf("Status: %v -> %v", d["old_status"], d["new_status"])
	case model.ChangeRedirect:
		return fmt.Sprintf("Redirect: %v -> %v", d["old_url"], d["new_url"])
	case model.ChangeContentSize:
		return fmt.Sprintf("Content size: %v -> %v bytes", d["old_size"], d["new_size"])
	case model.ChangeHeader:
		return fmt.Sprintf("Header %v: %v -> %v", d["header"], d["old_value"], d["new_value"])
	case model.ChangeTitle:
		return fmt.Sprintf("Title: %q -> %q", d["old_title"], d["new_title"])
	case model.ChangeMetaDescription:
		return "Meta description modified"
	case model.ChangeCanonicalURL:
		return fmt.Sprintf("Canonical: %v -> %v", d["old_canonical"], d["new_canonical"])
	case model.ChangeOpenGraph:
		return fmt.Sprintf("OpenGraph %v modified", d["field"])
	case model.ChangeWordCount:
		return fmt.Sprintf("Word count: %v -> %v", d["old_count"], d["new_count"])
	case model.ChangeHeadingStructure:
		return "Heading structure modified"
	case model.ChangeVersion:
		return fmt.Sprintf("Version: %v -> %v", d["old_version"], d["new_version"])
	case model.ChangePolicyKeyword:
		return fmt.Sprintf("Keyword %v: %v -> %v occurrences", d["keyword"], d["old_count"], d["new_count"])
	case model.ChangeVersionIndicator:
		return "Version indicators modified"
	case model.ChangeLegalLanguage:
		return fmt.Sprintf("Legal language: %v -> %v", d["old_state"], d["new_state"])
	default:
		return c.ChangeType
	}
}

// TextChunk is one added or removed run of text between two previews.
type TextChunk struct {
	Type    string `json:"type"` // added | removed
	Content string `json:"content"`
}

// TextDelta diffs two text previews at the character level and keeps
// only the added and removed runs.
func TextDelta(previous, current string) []TextChunk {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(previous, current, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	chunks := make([]TextChunk, 0)
	for _, d := range diffs {
		var chunkType string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			chunkType = "added"
		case diffmatchpatch.DiffDelete:
			chunkType = "removed"
		case diffmatchpatch.DiffEqual:
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		chunks = append(chunks, TextChunk{Type: chunkType, Content: d.Text})
	}
	return chunks
}
