package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/alexellis/go-execute/v2"
	"github.com/go-pdf/fpdf"
	"github.com/ledongthuc/pdf"
)

// Вёрстка PDF: A4, поля 1 дюйм.
const (
	pdfMargin     = 72.0
	pdfFontSize   = 11.0
	pdfLineHeight = 14.0
	pdfParaGap    = 12.0
)

const pdfHeading = "Converted PDF Document"

var (
	pdfToText = via(extractPDF, renderText)
	pdfToDocx = via(extractPDF, renderDocxHeaded(pdfHeading))
	pdfToRTF  = via(extractPDF, renderRTF)
	pdfToHTML = via(extractPDF, renderHTML)
)

// extractPDF извлекает текст всех страниц PDF.
func extractPDF(ctx context.Context, c *call) (doc *document, err error) {
	f, err := c.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Парсер паникует на части повреждённых файлов
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, decodeErr(fmt.Errorf("malformed pdf: %v", p))
		}
	}()

	r, err := pdf.NewReader(f, c.inSize)
	if err != nil {
		return nil, decodeErr(err)
	}

	doc = &document{title: defaultHTMLTitle}
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, extractionErr(fmt.Errorf("page %d: %w", i, err))
		}
		doc.pages = append(doc.pages, splitParagraphs(text))
	}
	return doc, nil
}

// renderPDF верстает документ в PDF встроенными шрифтами (cp1252).
func renderPDF(ctx context.Context, c *call, doc *document) error {
	pw := fpdf.New("P", "pt", "A4", "")
	pw.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pw.SetAutoPageBreak(true, pdfMargin)
	pw.SetCreator("converter-module", true)
	if doc.title != "" {
		pw.SetTitle(doc.title, true)
	}
	tr := pw.UnicodeTranslatorFromDescriptor("")

	family := "Helvetica"
	if doc.mono {
		family = "Courier"
	}

	pages := doc.pages
	if len(pages) == 0 {
		pages = [][]string{nil}
	}
	for i, page := range pages {
		pw.AddPage()
		if i == 0 && doc.heading != "" {
			pw.SetFont(family, "B", 16)
			pw.MultiCell(0, 20, tr(doc.heading), "", "L", false)
			pw.Ln(pdfParaGap)
		}
		pw.SetFont(family, "", pdfFontSize)
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			pw.MultiCell(0, pdfLineHeight, tr(p), "", "L", false)
			if !doc.lines {
				pw.Ln(pdfParaGap)
			}
		}
	}

	if err := pw.Output(c.w); err != nil {
		return encodeErr(err)
	}
	return nil
}

// pdfToImage растеризует первую страницу PDF внешним pdftoppm
// и кодирует её в целевой формат.
func pdfToImage(ctx context.Context, c *call) error {
	if c.pdftoppm == "" {
		return wrapKind(KindDependency, errors.New("pdftoppm not available"))
	}

	dir, err := c.tempDir()
	if err != nil {
		return err
	}
	inPath := filepath.Join(dir, "input.pdf")
	if err := c.copyTo(inPath); err != nil {
		return err
	}

	prefix := filepath.Join(dir, "page")
	task := execute.ExecTask{
		Command: c.pdftoppm,
		Args: []string{
			"-f", "1", "-l", "1",
			"-r", strconv.Itoa(c.opts.PDFResolution),
			"-png", "-singlefile",
			inPath, prefix,
		},
		StreamStdio: false,
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return extractionErr(fmt.Errorf("pdftoppm: %w", err))
	}
	if res.ExitCode != 0 {
		return extractionErr(fmt.Errorf("pdftoppm exited with code %d: %s", res.ExitCode, res.Stderr))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return extractionErr(fmt.Errorf("pdftoppm produced no image: %w", err))
	}
	img, err := decodeImageFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return encodeImage(c.w, img, c.target, c.opts)
}

// copyTo копирует входной файл в путь на диске ОС.
func (c *call) copyTo(path string) error {
	in, err := c.open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path)
	if err != nil {
		return ioErr(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return ioErr(err)
	}
	return ioErr(out.Close())
}
