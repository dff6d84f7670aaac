package convert

import (
	"context"
	"html/template"
	"regexp"
	"strings"
)

// document — промежуточное текстовое представление между
// извлечением (PDF, DOCX, RTF, HTML, Markdown, таблицы) и отрисовкой.
type document struct {
	// title — заголовок для метаданных и <title>
	title string
	// heading — заголовок, печатаемый перед текстом
	heading string
	// pages — страницы, каждая из абзацев
	pages [][]string
	// lines — абзацы являются строками (таблицы, код): без отступов между ними
	lines bool
	// mono — моноширинный шрифт
	mono bool
}

type extractor func(ctx context.Context, c *call) (*document, error)

type renderer func(ctx context.Context, c *call, doc *document) error

// via собирает обработчик из извлечения и отрисовки.
func via(extract extractor, render renderer) handler {
	return func(ctx context.Context, c *call) error {
		doc, err := extract(ctx, c)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return render(ctx, c, doc)
	}
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// splitParagraphs разбивает текст на абзацы по пустым строкам.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range blankLines.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func textDocument(text string) *document {
	return &document{pages: [][]string{splitParagraphs(text)}}
}

// paragraphs возвращает абзацы всех страниц подряд.
func (d *document) paragraphs() []string {
	var out []string
	for _, page := range d.pages {
		out = append(out, page...)
	}
	return out
}

// text собирает документ в простой текст.
func (d *document) text() string {
	sep := "\n\n"
	if d.lines {
		sep = "\n"
	}
	var b strings.Builder
	if d.heading != "" {
		b.WriteString(d.heading)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Join(d.paragraphs(), sep))
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func extractPlain(_ context.Context, c *call) (*document, error) {
	text, err := c.readText()
	if err != nil {
		return nil, err
	}
	return textDocument(text), nil
}

func renderText(_ context.Context, c *call, doc *document) error {
	return c.write(doc.text())
}

const defaultHTMLTitle = "Converted Document"

var htmlPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{- if .Header}}
<div class="file-header">{{.Header}}</div>
{{- end}}
{{- if .Code}}
<pre><code>{{.Pre}}</code></pre>
{{- else if .Pre}}
<pre>{{.Pre}}</pre>
{{- end}}
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
{{- if .Body}}
{{.Body}}
{{- end}}
</body>
</html>
`))

type htmlView struct {
	Title      string
	Header     string
	Pre        string
	Code       bool
	Paragraphs []string
	Body       template.HTML
}

func (c *call) renderPage(v htmlView) error {
	if v.Title == "" {
		v.Title = defaultHTMLTitle
	}
	if err := htmlPage.Execute(c.w, v); err != nil {
		return encodeErr(err)
	}
	return nil
}

// renderHTML отрисовывает документ абзацами <p>.
func renderHTML(_ context.Context, c *call, doc *document) error {
	v := htmlView{Title: doc.title, Paragraphs: doc.paragraphs()}
	if doc.heading != "" {
		v.Paragraphs = append([]string{doc.heading}, v.Paragraphs...)
	}
	return c.renderPage(v)
}

// textToHTML оборачивает текст в <pre>.
func textToHTML(_ context.Context, c *call) error {
	text, err := c.readText()
	if err != nil {
		return err
	}
	return c.renderPage(htmlView{Pre: text})
}

// codeToHTML оборачивает исходный код в <pre><code> с заголовком файла.
func codeToHTML(_ context.Context, c *call) error {
	text, err := c.readText()
	if err != nil {
		return err
	}
	return c.renderPage(htmlView{
		Title:  "Code: " + c.name,
		Header: "File: " + c.name,
		Pre:    text,
		Code:   true,
	})
}

func extractCode(_ context.Context, c *call) (*document, error) {
	text, err := c.readText()
	if err != nil {
		return nil, err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	return &document{
		title:   "Code: " + c.name,
		heading: "File: " + c.name,
		pages:   [][]string{strings.Split(strings.TrimRight(text, "\n"), "\n")},
		lines:   true,
		mono:    true,
	}, nil
}

var (
	textToPDF  = via(extractPlain, renderPDF)
	textToDocx = via(extractPlain, renderDocx)
	textToRTF  = via(extractPlain, renderRTF)
	codeToPDF  = via(extractCode, renderPDF)
)
