package converters

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockCode
	BlockRule
	BlockQuote
)

// Run is a span of inline text sharing one style.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

// Block is one renderable line group of a markdown document.
type Block struct {
	Kind    BlockKind
	Level   int // heading level
	Depth   int // list nesting, 0 for top level
	Ordered bool
	Number  int
	Runs    []Run
	Code    string
}

// PlainText joins the runs of b without styling.
func (b Block) PlainText() string {
	if b.Kind == BlockCode {
		return b.Code
	}
	var sb strings.Builder
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// ParseMarkdown flattens a CommonMark document into blocks.
func ParseMarkdown(md string) []Block {
	src := []byte(md)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	p := &mdParser{src: src}
	p.blocks(root, 0, false)
	return p.out
}

type mdParser struct {
	src []byte
	out []Block
}

func (p *mdParser) blocks(parent ast.Node, depth int, quoted bool) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			p.out = append(p.out, Block{Kind: BlockHeading, Level: node.Level, Runs: p.inline(node, Run{})})
		case *ast.Paragraph, *ast.TextBlock:
			kind := BlockParagraph
			if quoted {
				kind = BlockQuote
			}
			p.out = append(p.out, Block{Kind: kind, Runs: p.inline(node, Run{})})
		case *ast.List:
			p.list(node, depth, quoted)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			p.out = append(p.out, Block{Kind: BlockCode, Code: p.lines(node)})
		case *ast.ThematicBreak:
			p.out = append(p.out, Block{Kind: BlockRule})
		case *ast.Blockquote:
			p.blocks(node, depth, true)
		case *ast.HTMLBlock:
			if s := strings.TrimSpace(p.lines(node)); s != "" {
				p.out = append(p.out, Block{Kind: BlockParagraph, Runs: []Run{{Text: s}}})
			}
		default:
			p.blocks(node, depth, quoted)
		}
	}
}

func (p *mdParser) list(list *ast.List, depth int, quoted bool) {
	number := list.Start
	if number == 0 {
		number = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				b := Block{Kind: BlockListItem, Depth: depth, Ordered: list.IsOrdered(), Number: number, Runs: p.inline(c, Run{})}
				if !first {
					b.Kind = BlockParagraph
				}
				p.out = append(p.out, b)
				first = false
			case *ast.List:
				p.list(c.(*ast.List), depth+1, quoted)
			default:
				p.blocks(c, depth+1, quoted)
			}
		}
		number++
	}
}

func (p *mdParser) inline(parent ast.Node, style Run) []Run {
	var runs []Run
	add := func(s string, st Run) {
		if s == "" {
			return
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.Bold == st.Bold && last.Italic == st.Italic && last.Code == st.Code {
				last.Text += s
				return
			}
		}
		st.Text = s
		runs = append(runs, st)
	}

	var walk func(n ast.Node, st Run)
	walk = func(n ast.Node, st Run) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				add(string(node.Segment.Value(p.src)), st)
				if node.HardLineBreak() {
					add("\n", st)
				} else if node.SoftLineBreak() {
					add(" ", st)
				}
			case *ast.String:
				add(string(node.Value), st)
			case *ast.Emphasis:
				next := st
				if node.Level >= 2 {
					next.Bold = true
				} else {
					next.Italic = true
				}
				walk(node, next)
			case *ast.CodeSpan:
				next := st
				next.Code = true
				walk(node, next)
			case *ast.AutoLink:
				add(string(node.URL(p.src)), st)
			case *ast.RawHTML:
				continue
			default:
				walk(node, st)
			}
		}
	}
	walk(parent, style)
	return runs
}

func (p *mdParser) lines(n ast.Node) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(p.src))
	}
	return strings.TrimRight(sb.String(), "\n")
}
