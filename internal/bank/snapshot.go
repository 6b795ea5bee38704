package bank

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/p-n-ai/pai-quizset/internal/request"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// ParseSnapshot strips JSONC comments and trailing commas from data, then
// decodes a batch of items. The batch is either a bare array of items or an
// object with an "items" array. Items without a content hash or id get ones
// derived from their content.
func ParseSnapshot(data []byte) ([]Item, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))

	var items []Item
	if bytes.HasPrefix(stripped, []byte("[")) {
		if err := json.Unmarshal(stripped, &items); err != nil {
			return nil, fmt.Errorf("parsing snapshot: %w", err)
		}
	} else {
		var wrapped struct {
			Items []Item `json:"items"`
		}
		if err := json.Unmarshal(stripped, &wrapped); err != nil {
			return nil, fmt.Errorf("parsing snapshot: %w", err)
		}
		items = wrapped.Items
	}

	for i := range items {
		it := &items[i]
		if it.Payload == nil {
			return nil, fmt.Errorf("snapshot item %d (%q) has no content", i, it.ID)
		}
		if it.ContentHash == "" {
			it.ContentHash = contentHash(*it)
		}
		if it.ID == "" {
			it.ID = "snap-" + it.ContentHash[:16]
		}
	}
	return items, nil
}

// ReadSnapshot loads items from a snapshot file: .xlsx workbooks go
// through LoadWorkbook, anything else is parsed as JSON(C).
func ReadSnapshot(path string, opts WorkbookOptions) ([]Item, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		defer f.Close()

		items, err := LoadWorkbook(f, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return items, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	items, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// OpenSnapshot loads a snapshot file into a MemoryStore. Grade and subject
// tags are canonicalized the way requests are, so snapshot rows written as
// "중2" or "영어" match normalized queries. Workbook rows without a category
// column are categorized by subtype through tax.
func OpenSnapshot(path string, tax *taxonomy.Taxonomy) (*MemoryStore, error) {
	items, err := ReadSnapshot(path, WorkbookOptions{Categorize: tax.CategoryForSubtype})
	if err != nil {
		return nil, err
	}
	for i := range items {
		it := &items[i]
		if grade, ok := request.NormalizeGrade(it.Grade); ok {
			it.Grade = grade
		}
		it.Subject = request.NormalizeSubject(it.Subject, tax)
	}
	slog.Info("snapshot loaded", "path", path, "items", len(items))
	return NewMemoryStore(items...), nil
}
