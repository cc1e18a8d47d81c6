// Package pptx reads the slide text of PowerPoint decks locally.
package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/feichai0017/elearning-factory/internal/agent/document"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

// MIMEType is the media type of .pptx files.
const MIMEType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

const drawingNS = "http://schemas.openxmlformats.org/drawingml/2006/main"

type Analyzer struct {
	logger logger.Logger
}

func NewAnalyzer(log logger.Logger) *Analyzer {
	return &Analyzer{logger: log.Named("pptx")}
}

// AnalyzeDocument emits one "## Slide N" section per non-empty slide, in deck
// order. Each drawing paragraph becomes one line.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, in document.DocumentInput, opts document.AnalyzeOptions) (*document.AnalyzeResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(in.Bytes), int64(len(in.Bytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}

	slides := slideFiles(zr)
	if len(slides) == 0 {
		return nil, fmt.Errorf("failed to parse pptx %s: no slides", in.Name)
	}

	sections := make([]string, 0, len(slides))
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := slideText(s.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", s.number, err)
		}
		if len(lines) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("## Slide %d\n\n%s", s.number, strings.Join(lines, "\n")))
	}

	a.logger.Debug("PPTX text extracted",
		logger.String("file", in.Name),
		logger.Int("slides", len(slides)),
		logger.Int("sections", len(sections)),
	)

	return &document.AnalyzeResult{
		Content: strings.Join(sections, "\n\n"),
		Pages:   len(slides),
	}, nil
}

type slide struct {
	number int
	file   *zip.File
}

// slideFiles returns ppt/slides/slideN.xml entries sorted by N.
func slideFiles(zr *zip.Reader) []slide {
	var out []slide
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		out = append(out, slide{number: n, file: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out
}

// slideText collects the a:t runs of every a:p paragraph.
func slideText(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		lines  []string
		para   strings.Builder
		inText bool
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
			if t.Name.Space != drawingNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "br":
				para.WriteString(" ")
			}
		case xml.EndElement:
			if t.Name.Space != drawingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(para.String()); line != "" {
					lines = append(lines, line)
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return lines, nil
}
