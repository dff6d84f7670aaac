package convert

import (
	"bytes"
	"context"
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownToHTML рендерит Markdown в HTML-документ. Сырой HTML
// из исходника не пропускается.
func markdownToHTML(_ context.Context, c *call) error {
	src, err := c.readText()
	if err != nil {
		return err
	}
	var body bytes.Buffer
	if err := markdown.Convert([]byte(src), &body); err != nil {
		return decodeErr(err)
	}
	return c.renderPage(htmlView{
		Title: markdownTitle(src),
		Body:  template.HTML(body.String()),
	})
}

var mdHeading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)

// markdownTitle возвращает текст первого заголовка.
func markdownTitle(src string) string {
	if m := mdHeading.FindStringSubmatch(src); m != nil {
		return stripMarkdown(m[1])
	}
	return ""
}

var mdRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?m)^#{1,6}[ \t]*`), ""},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile("`(.*?)`"), "$1"},
	{regexp.MustCompile(`!?\[(.*?)\]\(.*?\)`), "$1"},
}

// stripMarkdown удаляет разметку заголовков, выделения, кода и ссылок.
func stripMarkdown(s string) string {
	for _, r := range mdRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

func extractMarkdown(_ context.Context, c *call) (*document, error) {
	src, err := c.readText()
	if err != nil {
		return nil, err
	}
	doc := textDocument(stripMarkdown(src))
	doc.title = markdownTitle(src)
	return doc, nil
}

var (
	markdownToText = via(extractMarkdown, renderText)
	markdownToPDF  = via(extractMarkdown, renderPDF)
	markdownToDocx = via(extractMarkdown, renderDocx)
)

var (
	htmlBlockEnd  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|table|ul|ol|pre|blockquote|section|article|header|footer)\s*>`)
	htmlLineBreak = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTitle     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRun      = regexp.MustCompile(`[ \t\f\v\r\x{00A0}]+`)
)

// htmlText удаляет теги и содержимое script/style, раскрывает сущности
// и схлопывает пробелы, сохраняя границы блоков как абзацы.
func htmlText(src string) string {
	src = htmlTitle.ReplaceAllString(src, "")
	src = htmlBlockEnd.ReplaceAllString(src, "$0\n\n")
	src = htmlLineBreak.ReplaceAllString(src, "\n")

	text := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(src))

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	return strings.Join(lines, "\n")
}

func extractHTML(_ context.Context, c *call) (*document, error) {
	src, err := c.readText()
	if err != nil {
		return nil, err
	}
	doc := textDocument(htmlText(src))
	if m := htmlTitle.FindStringSubmatch(src); m != nil {
		doc.title = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return doc, nil
}

var (
	htmlToText = via(extractHTML, renderText)
	htmlToPDF  = via(extractHTML, renderPDF)
	htmlToDocx = via(extractHTML, renderDocx)
)
