package bank

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/zeebo/blake3"

	"github.com/p-n-ai/pai-quizset/internal/document"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// WorkbookOptions control how spreadsheet rows become items.
type WorkbookOptions struct {
	// Grade and Subject apply to rows whose sheet has no such column.
	Grade   string
	Subject string
	// Categorize derives a category from a subtype tag for rows without a
	// category column. Rows that end up with no category are skipped.
	Categorize func(subtype string) (string, bool)
}

// Logical columns. Content columns keep the localized key the importer
// stores them under, so workbook payloads look like ingested ones.
const (
	colID          = "id"
	colGrade       = "grade"
	colSubject     = "subject"
	colCategory    = "category"
	colDifficulty  = "difficulty"
	colNumber      = "번호"
	colQuestion    = "문제"
	colPassage     = "지문"
	colAnswer      = "정답번호"
	colExplanation = "해설"
	colRemark      = "비고"
	colMemo        = "메모"
	colSubtype     = "qtype"
)

var choiceColumns = []string{"보기1", "보기2", "보기3", "보기4", "보기5"}

var columnAliases = map[string][]string{
	colID:          {"id", "문항id", "problem_id", "item_id"},
	colGrade:       {"grade", "학년"},
	colSubject:     {"subject", "과목"},
	colCategory:    {"category", "대분류", "카테고리"},
	colDifficulty:  {"difficulty", "난이도"},
	colNumber:      {"번호", "number", "num", "no"},
	colQuestion:    {"문제", "question", "질문"},
	colPassage:     {"지문", "passage", "본문", "지문텍스트"},
	colAnswer:      {"정답번호", "정답", "answer", "answernumber", "answer_no"},
	colExplanation: {"해설", "explain", "explanation", "설명"},
	colRemark:      {"비고"},
	colMemo:        {"메모"},
	colSubtype:     {"qtype", "소분류", "유형"},
}

func init() {
	for i, c := range choiceColumns {
		n := i + 1
		columnAliases[c] = []string{
			c,
			fmt.Sprintf("선택지%d", n),
			fmt.Sprintf("choice%d", n),
			fmt.Sprintf("option%d", n),
		}
	}
}

var parenthesized = regexp.MustCompile(`[（(].*?[）)]`)

// normalizeHeader drops parenthesized remarks and all whitespace, so
// "정답 번호 (1~5)" and "정답번호" name the same column.
func normalizeHeader(h string) string {
	h = parenthesized.ReplaceAllString(h, "")
	h = strings.Join(strings.Fields(h), "")
	return taxonomy.Fold(h)
}

func headerIndex(headers []string) map[string]int {
	byHeader := make(map[string]int, len(headers))
	for i, h := range headers {
		if n := normalizeHeader(h); n != "" {
			if _, dup := byHeader[n]; !dup {
				byHeader[n] = i
			}
		}
	}

	columns := make(map[string]int)
	for logical, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := byHeader[normalizeHeader(a)]; ok {
				columns[logical] = i
				break
			}
		}
	}
	return columns
}

// LoadWorkbook reads items from every sheet of an xlsx workbook. The first
// row of each sheet is the header; column names are matched through the
// importer's alias table. Sheets named README are skipped, and the sheet
// name serves as the subtype of rows that carry none.
func LoadWorkbook(r io.Reader, opts WorkbookOptions) ([]Item, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var (
		items []Item
		seen  = make(map[string]bool)
	)
	for _, sheet := range f.GetSheetList() {
		if strings.Contains(strings.ToUpper(sheet), "README") {
			continue
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}

		columns := headerIndex(rows[0])
		skipped := 0
		for i, row := range rows[1:] {
			it, ok := workbookItem(row, columns, strings.TrimSpace(sheet), opts)
			if !ok {
				skipped++
				continue
			}
			if seen[it.ID] {
				slog.Debug("duplicate workbook row", "sheet", sheet, "row", i+2, "id", it.ID)
				continue
			}
			seen[it.ID] = true
			items = append(items, it)
		}
		if skipped > 0 {
			slog.Warn("workbook rows without category skipped", "sheet", sheet, "rows", skipped)
		}
	}
	return items, nil
}

func workbookItem(row []string, columns map[string]int, sheet string, opts WorkbookOptions) (Item, bool) {
	cell := func(logical string) string {
		i, ok := columns[logical]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	subtype := cell(colSubtype)
	if subtype == "" {
		subtype = sheet
	}

	it := Item{
		ID:         cell(colID),
		Grade:      firstNonEmpty(cell(colGrade), opts.Grade),
		Subject:    firstNonEmpty(cell(colSubject), opts.Subject),
		Category:   cell(colCategory),
		Difficulty: firstNonEmpty(cell(colDifficulty), "1"),
	}
	if it.Category == "" && opts.Categorize != nil {
		it.Category, _ = opts.Categorize(subtype)
	}
	if it.Category == "" {
		return Item{}, false
	}

	explanation := firstNonEmpty(cell(colExplanation), cell(colRemark), cell(colMemo))

	var raw []document.Field
	put := func(key, value string) {
		if value != "" {
			raw = append(raw, document.Field{Key: key, Value: document.NewString(value)})
		}
	}
	if n, err := strconv.Atoi(cell(colNumber)); err == nil {
		raw = append(raw, document.Field{Key: colNumber, Value: document.NewNumber(float64(n))})
	}
	put(colQuestion, cell(colQuestion))
	put(colPassage, cell(colPassage))
	for _, c := range choiceColumns {
		put(c, cell(c))
	}
	if answer := cell(colAnswer); answer != "" {
		if n, err := strconv.Atoi(answer); err == nil {
			raw = append(raw, document.Field{Key: colAnswer, Value: document.NewNumber(float64(n))})
		} else {
			put(colAnswer, answer)
		}
	}
	put(colExplanation, explanation)
	put(colSubtype, subtype)

	top := []document.Field{{Key: "qtype", Value: document.NewString(subtype)}}
	if passage := cell(colPassage); passage != "" {
		top = append(top, document.Field{Key: "stimulus", Value: document.NewString(passage)})
	}
	if explanation != "" {
		top = append(top, document.Field{Key: "explanation", Value: document.NewString(explanation)})
	}
	top = append(top, document.Field{Key: "raw", Value: document.NewObject(raw...)})
	it.Payload = document.NewObject(top...)

	it.ContentHash = contentHash(it)
	if it.ID == "" {
		it.ID = "xlsx-" + it.ContentHash[:16]
	}
	return it, true
}

// contentHash fingerprints an item the way ingestion deduplicates rows:
// grade, subject, category, difficulty and the full payload.
func contentHash(it Item) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", it.Grade, it.Subject, it.Category, it.Difficulty)
	io.WriteString(h, it.Payload.String())
	return hex.EncodeToString(h.Sum(nil))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
