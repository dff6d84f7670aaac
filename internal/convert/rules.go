package convert

import (
	"context"
	"io"
	"slices"

	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
)

// handler выполняет конвертацию входа c.in в поток c.w.
type handler func(ctx context.Context, c *call) error

// rule — строка таблицы конвертации. Источник задаётся списком
// расширений или категорией (с исключениями), цель — аналогично.
type rule struct {
	name string

	from         []string
	fromCategory format.Category
	exclude      []string

	to         []string
	toCategory format.Category

	requires []Capability
	fallback bool
	run      handler
}

func (r *rule) matches(src, target string) bool {
	if slices.Contains(r.exclude, src) || slices.Contains(r.exclude, target) {
		return false
	}
	return matchSide(src, r.from, r.fromCategory) && matchSide(target, r.to, r.toCategory)
}

func matchSide(ext string, exts []string, cat format.Category) bool {
	if len(exts) > 0 {
		return slices.Contains(exts, ext)
	}
	if cat != "" {
		return format.CategoryOf(ext) == cat
	}
	// Пустая сторона совпадает с любым известным форматом
	return format.IsKnown(ext)
}

// Растровые форматы, которые умеет кодировать движок (кроме WebP).
var rasterTargets = []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "ico"}

// defaultRules возвращает таблицу правил. Порядок значим: побеждает
// первое совпадение, поэтому точные пары стоят раньше категорийных.
func defaultRules() []rule {
	return []rule{
		// PDF
		{name: "pdf-to-txt", from: []string{"pdf"}, to: []string{"txt"},
			requires: []Capability{CapPDFText}, run: pdfToText},
		{name: "pdf-to-docx", from: []string{"pdf"}, to: []string{"docx"},
			requires: []Capability{CapPDFText, CapDocx}, run: pdfToDocx},
		{name: "pdf-to-rtf", from: []string{"pdf"}, to: []string{"rtf"},
			requires: []Capability{CapPDFText}, run: pdfToRTF},
		{name: "pdf-to-html", from: []string{"pdf"}, to: []string{"html", "htm"},
			requires: []Capability{CapPDFText}, run: pdfToHTML},
		{name: "pdf-to-md", from: []string{"pdf"}, to: []string{"md"},
			requires: []Capability{CapPDFText}, run: pdfToText},
		{name: "pdf-to-webp", from: []string{"pdf"}, to: []string{"webp"},
			requires: []Capability{CapPDFRender, CapWebPEncode}, run: pdfToImage},
		{name: "pdf-to-raster", from: []string{"pdf"}, to: rasterTargets,
			requires: []Capability{CapPDFRender, CapImage}, run: pdfToImage},

		// DOCX
		{name: "docx-to-txt", from: []string{"docx"}, to: []string{"txt", "md"},
			requires: []Capability{CapDocx}, run: docxToText},
		{name: "docx-to-pdf", from: []string{"docx"}, to: []string{"pdf"},
			requires: []Capability{CapDocx, CapPDFWrite}, run: docxToPDF},
		{name: "docx-to-html", from: []string{"docx"}, to: []string{"html", "htm"},
			requires: []Capability{CapDocx}, run: docxToHTML},
		{name: "docx-to-rtf", from: []string{"docx"}, to: []string{"rtf"},
			requires: []Capability{CapDocx}, run: docxToRTF},

		// RTF
		{name: "rtf-to-txt", from: []string{"rtf"}, to: []string{"txt", "md"}, run: rtfToText},
		{name: "rtf-to-pdf", from: []string{"rtf"}, to: []string{"pdf"},
			requires: []Capability{CapPDFWrite}, run: rtfToPDF},
		{name: "rtf-to-html", from: []string{"rtf"}, to: []string{"html", "htm"}, run: rtfToHTML},
		{name: "rtf-to-docx", from: []string{"rtf"}, to: []string{"docx"},
			requires: []Capability{CapDocx}, run: rtfToDocx},

		// Текст и разметка
		{name: "txt-to-pdf", from: []string{"txt"}, to: []string{"pdf"},
			requires: []Capability{CapPDFWrite}, run: textToPDF},
		{name: "txt-to-html", from: []string{"txt"}, to: []string{"html", "htm"}, run: textToHTML},
		{name: "txt-to-md", from: []string{"txt"}, to: []string{"md"}, run: passthroughText},
		{name: "txt-to-docx", from: []string{"txt"}, to: []string{"docx"},
			requires: []Capability{CapDocx}, run: textToDocx},
		{name: "txt-to-rtf", from: []string{"txt"}, to: []string{"rtf"}, run: textToRTF},

		{name: "md-to-html", from: []string{"md"}, to: []string{"html", "htm"}, run: markdownToHTML},
		{name: "md-to-txt", from: []string{"md"}, to: []string{"txt"}, run: markdownToText},
		{name: "md-to-pdf", from: []string{"md"}, to: []string{"pdf"},
			requires: []Capability{CapPDFWrite}, run: markdownToPDF},
		{name: "md-to-docx", from: []string{"md"}, to: []string{"docx"},
			requires: []Capability{CapDocx}, run: markdownToDocx},

		{name: "html-to-html", from: []string{"html", "htm"}, to: []string{"html", "htm"}, run: passthroughText},
		{name: "html-to-txt", from: []string{"html", "htm"}, to: []string{"txt", "md"}, run: htmlToText},
		{name: "html-to-pdf", from: []string{"html", "htm"}, to: []string{"pdf"},
			requires: []Capability{CapPDFWrite}, run: htmlToPDF},
		{name: "html-to-docx", from: []string{"html", "htm"}, to: []string{"docx"},
			requires: []Capability{CapDocx}, run: htmlToDocx},

		// Табличные данные и структурированные форматы
		{name: "csv-to-json", from: []string{"csv"}, to: []string{"json"}, run: csvToJSON},
		{name: "csv-to-xml", from: []string{"csv"}, to: []string{"xml"}, run: csvToXML},
		{name: "csv-to-pdf", from: []string{"csv"}, to: []string{"pdf"},
			requires: []Capability{CapPDFWrite}, run: csvToPDF},
		{name: "csv-to-xlsx", from: []string{"csv"}, to: []string{"xlsx"},
			requires: []Capability{CapSpreadsheet}, run: csvToXLSX},
		{name: "csv-to-txt", from: []string{"csv"}, to: []string{"txt"}, run: passthroughText},

		{name: "json-to-csv", from: []string{"json"}, to: []string{"csv"}, run: jsonToCSV},
		{name: "json-to-xml", from: []string{"json"}, to: []string{"xml"}, run: jsonToXML},
		{name: "json-to-xlsx", from: []string{"json"}, to: []string{"xlsx"},
			requires: []Capability{CapSpreadsheet}, run: jsonToXLSX},
		{name: "xml-to-json", from: []string{"xml"}, to: []string{"json"}, run: xmlToJSON},
		{name: "xml-to-csv", from: []string{"xml"}, to: []string{"csv"}, run: xmlToCSV},

		{name: "xlsx-to-csv", from: []string{"xlsx"}, to: []string{"csv"},
			requires: []Capability{CapSpreadsheet}, run: xlsxToCSV},
		{name: "xlsx-to-json", from: []string{"xlsx"}, to: []string{"json"},
			requires: []Capability{CapSpreadsheet}, run: xlsxToJSON},
		{name: "xlsx-to-xml", from: []string{"xlsx"}, to: []string{"xml"},
			requires: []Capability{CapSpreadsheet}, run: xlsxToXML},
		{name: "xlsx-to-pdf", from: []string{"xlsx"}, to: []string{"pdf"},
			requires: []Capability{CapSpreadsheet, CapPDFWrite}, run: xlsxToPDF},
		{name: "xlsx-to-txt", from: []string{"xlsx"}, to: []string{"txt"},
			requires: []Capability{CapSpreadsheet}, run: xlsxToText},

		// Категорийные правила
		{name: "image-to-pdf", fromCategory: format.Image, exclude: []string{"svg"}, to: []string{"pdf"},
			requires: []Capability{CapImage, CapPDFWrite}, run: imageToPDF},
		{name: "image-to-webp", fromCategory: format.Image, exclude: []string{"svg"}, to: []string{"webp"},
			requires: []Capability{CapImage, CapWebPEncode}, run: imageToImage},
		{name: "image-to-raster", fromCategory: format.Image, exclude: []string{"svg"}, to: rasterTargets,
			requires: []Capability{CapImage}, run: imageToImage},

		{name: "code-to-html", fromCategory: format.Code, to: []string{"html", "htm"}, run: codeToHTML},
		{name: "code-to-txt", fromCategory: format.Code, to: []string{"txt"}, run: passthroughText},
		{name: "code-to-pdf", fromCategory: format.Code, to: []string{"pdf"},
			requires: []Capability{CapPDFWrite}, run: codeToPDF},

		{name: "data-to-txt", fromCategory: format.Data, to: []string{"txt"}, run: passthroughText},
	}
}

// copyFallbackRule копирует вход без изменений для любой известной пары.
func copyFallbackRule() rule {
	return rule{name: "copy-fallback", fallback: true, run: copyInput}
}

func copyInput(_ context.Context, c *call) error {
	f, err := c.open()
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(c.w, f); err != nil {
		return ioErr(err)
	}
	return nil
}

// passthroughText переписывает текстовый вход как UTF-8 без BOM.
func passthroughText(_ context.Context, c *call) error {
	text, err := c.readText()
	if err != nil {
		return err
	}
	return c.write(text)
}
