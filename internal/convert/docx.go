package convert

import (
	"context"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

var (
	docxToText = via(extractDocx, renderText)
	docxToPDF  = via(extractDocx, renderPDF)
	docxToHTML = via(extractDocx, renderHTML)
	docxToRTF  = via(extractDocx, renderRTF)
)

// extractDocx извлекает текст абзацев DOCX. Пустые абзацы пропускаются.
func extractDocx(ctx context.Context, c *call) (doc *document, err error) {
	f, err := c.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, decodeErr(fmt.Errorf("malformed docx: %v", p))
		}
	}()

	d, err := docx.Parse(f, c.inSize)
	if err != nil {
		return nil, decodeErr(err)
	}

	var paras []string
	for _, item := range d.Document.Body.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := strings.TrimSpace(p.String()); text != "" {
			paras = append(paras, text)
		}
	}
	return &document{pages: [][]string{paras}}, nil
}

// renderDocx записывает документ в DOCX: абзац на абзац,
// разрыв страницы между страницами.
func renderDocx(ctx context.Context, c *call, doc *document) error {
	d := docx.New().WithDefaultTheme()

	if doc.heading != "" {
		d.AddParagraph().AddText(doc.heading).Bold().Size("32")
	}
	for i, page := range doc.pages {
		if i > 0 {
			d.AddParagraph().AddPageBreaks()
		}
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !doc.lines {
				p = strings.Join(strings.Fields(p), " ")
			}
			d.AddParagraph().AddText(p)
		}
	}

	if _, err := d.WriteTo(c.w); err != nil {
		return encodeErr(err)
	}
	return nil
}

// renderDocxHeaded — renderDocx с заданным заголовком.
func renderDocxHeaded(heading string) renderer {
	return func(ctx context.Context, c *call, doc *document) error {
		d := *doc
		d.heading = heading
		return renderDocx(ctx, c, &d)
	}
}
