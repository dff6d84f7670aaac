package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/iancoleman/orderedmap"
	"github.com/xuri/excelize/v2"
)

// readXLSXTable читает первый лист книги. Первая строка — заголовок;
// строки дополняются пустыми ячейками до ширины таблицы.
func readXLSXTable(ctx context.Context, c *call) (*table, error) {
	f, err := c.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	book, err := excelize.OpenReader(f)
	if err != nil {
		return nil, decodeErr(err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, decodeErr(errors.New("workbook has no sheets"))
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, extractionErr(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &table{}, nil
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return &table{header: rows[0], rows: rows[1:]}, nil
}

// writeXLSX записывает таблицу на лист "Sheet1". Числа из JSON
// сохраняются числовыми ячейками, остальное — строками.
func writeXLSX(w io.Writer, header []string, rows [][]any) error {
	book := excelize.NewFile()
	defer book.Close()

	const sheet = "Sheet1"
	put := func(n int, values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		return book.SetSheetRow(sheet, cell, &values)
	}

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := put(1, head); err != nil {
		return encodeErr(err)
	}
	for i, row := range rows {
		if err := put(i+2, row); err != nil {
			return encodeErr(err)
		}
	}
	if err := book.Write(w); err != nil {
		return encodeErr(err)
	}
	return nil
}

func stringRows(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}

func csvToXLSX(_ context.Context, c *call) error {
	t, err := readCSVTable(c)
	if err != nil {
		return err
	}
	return writeXLSX(c.w, t.header, stringRows(t.rows))
}

func jsonToXLSX(_ context.Context, c *call) error {
	v, err := readJSON(c)
	if err != nil {
		return err
	}
	t, err := jsonTable(v)
	if err != nil {
		return err
	}

	// Числовые ячейки восстанавливаются по исходным значениям
	arr := v.([]any)
	rows := make([][]any, len(t.rows))
	for i, row := range t.rows {
		rec := arr[i].(*orderedmap.OrderedMap)
		vals := make([]any, len(row))
		for j, key := range t.header {
			vals[j] = row[j]
			raw, _ := rec.Get(key)
			if n, ok := raw.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					vals[j] = f
				}
			}
		}
		rows[i] = vals
	}
	return writeXLSX(c.w, t.header, rows)
}

func xlsxToCSV(ctx context.Context, c *call) error {
	t, err := readXLSXTable(ctx, c)
	if err != nil {
		return err
	}
	return writeCSV(c.w, t)
}

func xlsxToJSON(ctx context.Context, c *call) error {
	t, err := readXLSXTable(ctx, c)
	if err != nil {
		return err
	}
	return writeJSON(c.w, t.records())
}

func xlsxToXML(ctx context.Context, c *call) error {
	t, err := readXLSXTable(ctx, c)
	if err != nil {
		return err
	}
	return writeTableXML(c.w, t)
}

func extractXLSX(ctx context.Context, c *call) (*document, error) {
	t, err := readXLSXTable(ctx, c)
	if err != nil {
		return nil, err
	}
	doc := t.document()
	doc.title = fmt.Sprintf("Spreadsheet: %s", c.name)
	return doc, nil
}

var (
	xlsxToPDF  = via(extractXLSX, renderPDF)
	xlsxToText = via(extractXLSX, renderText)
)
