package textract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

const (
	layoutTitle         = types.BlockType("LAYOUT_TITLE")
	layoutSectionHeader = types.BlockType("LAYOUT_SECTION_HEADER")
	layoutHeader        = types.BlockType("LAYOUT_HEADER")
	layoutFooter        = types.BlockType("LAYOUT_FOOTER")
	layoutPageNumber    = types.BlockType("LAYOUT_PAGE_NUMBER")
)

type renderer struct {
	blocks        []types.Block
	byID          map[string]types.Block
	layoutRole    map[string]types.BlockType
	tableWords    map[string]bool
	minConfidence float32
	pages         int
}

func newRenderer(blocks []types.Block, minConfidence float32) *renderer {
	r := &renderer{
		blocks:        blocks,
		byID:          make(map[string]types.Block, len(blocks)),
		layoutRole:    make(map[string]types.BlockType),
		tableWords:    make(map[string]bool),
		minConfidence: minConfidence,
	}

	for _, b := range blocks {
		if b.Id != nil {
			r.byID[*b.Id] = b
		}
		if b.BlockType == types.BlockTypePage {
			r.pages++
		}
	}
	for _, b := range blocks {
		switch {
		case strings.HasPrefix(string(b.BlockType), "LAYOUT_"):
			for _, id := range childIDs(b) {
				r.layoutRole[id] = b.BlockType
			}
		case b.BlockType == types.BlockTypeTable:
			for _, cellID := range childIDs(b) {
				for _, wordID := range childIDs(r.byID[cellID]) {
					r.tableWords[wordID] = true
				}
			}
		}
	}
	if r.pages == 0 && len(blocks) > 0 {
		r.pages = 1
	}
	return r
}

func childIDs(b types.Block) []string {
	return relatedIDs(b, types.RelationshipTypeChild)
}

func relatedIDs(b types.Block, rt types.RelationshipType) []string {
	var ids []string
	for _, rel := range b.Relationships {
		if rel.Type == rt {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}

func (r *renderer) confident(b types.Block) bool {
	return b.Confidence == nil || *b.Confidence >= r.minConfidence
}

// PlainText returns every confident LINE in reading order.
func (r *renderer) PlainText() string {
	var lines []string
	for _, b := range r.blocks {
		if b.BlockType == types.BlockTypeLine && b.Text != nil && r.confident(b) {
			lines = append(lines, *b.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// pageWriter groups consecutive text lines into paragraphs.
type pageWriter struct {
	chunks []string
	lines  []string
}

func (w *pageWriter) line(s string) {
	w.lines = append(w.lines, s)
}

func (w *pageWriter) block(s string) {
	w.flush()
	w.chunks = append(w.chunks, s)
}

func (w *pageWriter) flush() {
	if len(w.lines) > 0 {
		w.chunks = append(w.chunks, strings.Join(w.lines, "\n"))
		w.lines = nil
	}
}

// Markdown renders lines, layout headings, tables and key/value pairs.
// Lines that belong to a table are emitted only as part of the table.
func (r *renderer) Markdown() string {
	pages := make(map[int32]*pageWriter)
	var order []int32
	writer := func(b types.Block) *pageWriter {
		p := aws.ToInt32(b.Page)
		if p == 0 {
			p = 1
		}
		w, ok := pages[p]
		if !ok {
			w = &pageWriter{}
			pages[p] = w
			order = append(order, p)
		}
		return w
	}

	for _, b := range r.blocks {
		switch b.BlockType {
		case types.BlockTypeLine:
			if b.Text == nil || !r.confident(b) || r.lineInTable(b) {
				continue
			}
			text := strings.TrimSpace(*b.Text)
			if text == "" {
				continue
			}
			w := writer(b)
			switch r.layoutRole[aws.ToString(b.Id)] {
			case layoutTitle:
				w.block("# " + text)
			case layoutSectionHeader:
				w.block("## " + text)
			case layoutHeader, layoutFooter, layoutPageNumber:
			default:
				w.line(text)
			}
		case types.BlockTypeTable:
			if table := r.renderTable(b); table != "" {
				writer(b).block(table)
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	var sections []string
	for _, p := range order {
		w := pages[p]
		w.flush()
		if len(w.chunks) > 0 {
			sections = append(sections, strings.Join(w.chunks, "\n\n"))
		}
	}

	if forms := r.renderForms(); forms != "" {
		sections = append(sections, forms)
	}
	return strings.Join(sections, "\n\n")
}

func (r *renderer) lineInTable(line types.Block) bool {
	ids := childIDs(line)
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !r.tableWords[id] {
			return false
		}
	}
	return true
}

func (r *renderer) textOf(b types.Block) string {
	var words []string
	for _, id := range childIDs(b) {
		child, ok := r.byID[id]
		if !ok {
			continue
		}
		switch child.BlockType {
		case types.BlockTypeWord:
			if child.Text != nil {
				words = append(words, *child.Text)
			}
		case types.BlockTypeSelectionElement:
			if child.SelectionStatus == types.SelectionStatusSelected {
				words = append(words, "[x]")
			} else {
				words = append(words, "[ ]")
			}
		}
	}
	return strings.Join(words, " ")
}

func (r *renderer) renderTable(table types.Block) string {
	var (
		rows, cols int32
		cells      = make(map[[2]int32]string)
	)
	for _, id := range childIDs(table) {
		cell, ok := r.byID[id]
		if !ok || cell.BlockType != types.BlockTypeCell {
			continue
		}
		row, col := aws.ToInt32(cell.RowIndex), aws.ToInt32(cell.ColumnIndex)
		if row < 1 || col < 1 {
			continue
		}
		if row > rows {
			rows = row
		}
		if col > cols {
			cols = col
		}
		cells[[2]int32{row, col}] = strings.ReplaceAll(r.textOf(cell), "|", `\|`)
	}
	if rows == 0 || cols == 0 {
		return ""
	}

	var sb strings.Builder
	for row := int32(1); row <= rows; row++ {
		sb.WriteString("|")
		for col := int32(1); col <= cols; col++ {
			fmt.Fprintf(&sb, " %s |", cells[[2]int32{row, col}])
		}
		sb.WriteString("\n")
		if row == 1 {
			sb.WriteString("|" + strings.Repeat(" --- |", int(cols)) + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *renderer) renderForms() string {
	var lines []string
	for _, b := range r.blocks {
		if b.BlockType != types.BlockTypeKeyValueSet || !isKey(b) {
			continue
		}
		key := r.textOf(b)
		var value string
		for _, id := range relatedIDs(b, types.RelationshipTypeValue) {
			if vb, ok := r.byID[id]; ok {
				value = r.textOf(vb)
				break
			}
		}
		if key != "" && value != "" {
			lines = append(lines, fmt.Sprintf("**%s** %s", strings.TrimSuffix(key, ":")+":", value))
		}
	}
	return strings.Join(lines, "\n")
}

func isKey(b types.Block) bool {
	for _, et := range b.EntityTypes {
		if et == types.EntityTypeKey {
			return true
		}
	}
	return false
}
