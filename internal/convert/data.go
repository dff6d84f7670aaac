package convert

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/iancoleman/orderedmap"
	"golang.org/x/net/html/charset"
)

// table — таблица с заголовком: промежуточная форма CSV, XLSX и JSON-массивов.
type table struct {
	header []string
	rows   [][]string
}

// records превращает строки в упорядоченные объекты header→значение.
// Недостающие ячейки становятся пустыми строками, лишние отбрасываются.
func (t *table) records() []*orderedmap.OrderedMap {
	out := make([]*orderedmap.OrderedMap, 0, len(t.rows))
	for _, row := range t.rows {
		rec := orderedmap.New()
		rec.SetEscapeHTML(false)
		for i, key := range t.header {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			rec.Set(key, val)
		}
		out = append(out, rec)
	}
	return out
}

// lines возвращает строки таблицы (с заголовком), склеенные через " | ".
func (t *table) lines() []string {
	out := make([]string, 0, len(t.rows)+1)
	if len(t.header) > 0 {
		out = append(out, strings.Join(t.header, " | "))
	}
	for _, row := range t.rows {
		out = append(out, strings.Join(row, " | "))
	}
	return out
}

func (t *table) document() *document {
	return &document{pages: [][]string{t.lines()}, lines: true}
}

func readCSVTable(c *call) (*table, error) {
	text, err := c.readText()
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, decodeErr(err)
	}
	if len(all) == 0 {
		return &table{}, nil
	}
	return &table{header: all[0], rows: all[1:]}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return encodeErr(err)
	}
	return nil
}

func writeCSV(w io.Writer, t *table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return encodeErr(err)
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return encodeErr(err)
	}
	return nil
}

// csvToJSON — массив объектов, ключи в порядке столбцов, значения строками.
func csvToJSON(_ context.Context, c *call) error {
	t, err := readCSVTable(c)
	if err != nil {
		return err
	}
	return writeJSON(c.w, t.records())
}

// csvToXML — <data><record><поле>значение</поле>…</record>…</data>.
func csvToXML(_ context.Context, c *call) error {
	t, err := readCSVTable(c)
	if err != nil {
		return err
	}
	return writeTableXML(c.w, t)
}

func writeTableXML(w io.Writer, t *table) error {
	names := make([]string, len(t.header))
	for i, h := range t.header {
		names[i] = xmlName(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", "_")))
	}

	x := newXMLWriter(w)
	x.start("data")
	for _, row := range t.rows {
		x.start("record")
		for i, name := range names {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			x.leaf(name, val)
		}
		x.end("record")
	}
	x.end("data")
	return x.close()
}

func extractCSV(_ context.Context, c *call) (*document, error) {
	t, err := readCSVTable(c)
	if err != nil {
		return nil, err
	}
	return t.document(), nil
}

var csvToPDF = via(extractCSV, renderPDF)

// decodeJSON разбирает JSON, сохраняя порядок ключей объектов
// (*orderedmap.OrderedMap) и точность чисел (json.Number).
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch tok {
	case json.Delim('{'):
		obj := orderedmap.New()
		obj.SetEscapeHTML(false)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("invalid object key %v", kt)
			}
			val, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case json.Delim('['):
		arr := []any{}
		for dec.More() {
			val, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return tok, nil
	}
}

func readJSON(c *call) (any, error) {
	text, err := c.readText()
	if err != nil {
		return nil, err
	}
	v, err := decodeJSON([]byte(text))
	if err != nil {
		return nil, decodeErr(fmt.Errorf("invalid json: %w", err))
	}
	return v, nil
}

// scalarString — строковое представление значения ячейки CSV/XML.
// Вложенные объекты и массивы сериализуются в компактный JSON.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}

// jsonTable строит таблицу из непустого массива объектов.
// Заголовок — ключи первого объекта.
func jsonTable(v any) (*table, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, decodeErr(errors.New("json must be a non-empty array of objects"))
	}
	first, ok := arr[0].(*orderedmap.OrderedMap)
	if !ok {
		return nil, decodeErr(errors.New("json must be a non-empty array of objects"))
	}

	t := &table{header: first.Keys()}
	for i, item := range arr {
		rec, ok := item.(*orderedmap.OrderedMap)
		if !ok {
			return nil, decodeErr(fmt.Errorf("element %d is not an object", i))
		}
		row := make([]string, len(t.header))
		for j, key := range t.header {
			if val, ok := rec.Get(key); ok {
				row[j] = scalarString(val)
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func jsonToCSV(_ context.Context, c *call) error {
	v, err := readJSON(c)
	if err != nil {
		return err
	}
	t, err := jsonTable(v)
	if err != nil {
		return err
	}
	return writeCSV(c.w, t)
}

// jsonToXML — корень <root>; ключи объектов становятся элементами,
// элементы массивов — <item>, скаляры — текстом.
func jsonToXML(_ context.Context, c *call) error {
	v, err := readJSON(c)
	if err != nil {
		return err
	}
	x := newXMLWriter(c.w)
	x.value("root", v)
	return x.close()
}

// xmlWriter — запись XML с отступами поверх encoding/xml.Encoder.
// Первая ошибка запоминается и возвращается из close.
type xmlWriter struct {
	w   io.Writer
	enc *xml.Encoder
	err error
}

func newXMLWriter(w io.Writer) *xmlWriter {
	x := &xmlWriter{w: w, enc: xml.NewEncoder(w)}
	x.enc.Indent("", "  ")
	_, x.err = io.WriteString(w, xml.Header)
	return x
}

func (x *xmlWriter) token(t xml.Token) {
	if x.err == nil {
		x.err = x.enc.EncodeToken(t)
	}
}

func (x *xmlWriter) start(name string) {
	x.token(xml.StartElement{Name: xml.Name{Local: name}})
}

func (x *xmlWriter) end(name string) {
	x.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (x *xmlWriter) leaf(name, text string) {
	x.start(name)
	if text != "" {
		x.token(xml.CharData(text))
	}
	x.end(name)
}

func (x *xmlWriter) value(name string, v any) {
	switch t := v.(type) {
	case *orderedmap.OrderedMap:
		x.start(name)
		for _, key := range t.Keys() {
			val, _ := t.Get(key)
			x.value(xmlName(key), val)
		}
		x.end(name)
	case []any:
		x.start(name)
		for _, item := range t {
			x.value("item", item)
		}
		x.end(name)
	default:
		x.leaf(name, scalarString(t))
	}
}

func (x *xmlWriter) close() error {
	if x.err != nil {
		return encodeErr(x.err)
	}
	if err := x.enc.Flush(); err != nil {
		return encodeErr(err)
	}
	if _, err := io.WriteString(x.w, "\n"); err != nil {
		return ioErr(err)
	}
	return nil
}

// xmlName приводит строку к допустимому имени XML-элемента.
func xmlName(s string) string {
	var b strings.Builder
	for i, r := range s {
		valid := unicode.IsLetter(r) || r == '_' ||
			(i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'))
		if valid {
			b.WriteRune(r)
			continue
		}
		if i == 0 && (unicode.IsDigit(r) || r == '-' || r == '.') {
			b.WriteRune('_')
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	if b.Len() == 0 {
		return "_"
	}
	name := b.String()
	if strings.HasPrefix(strings.ToLower(name), "xml") {
		name = "_" + name
	}
	return name
}

// xmlNode — элемент XML-дерева.
type xmlNode struct {
	name     string
	text     strings.Builder
	children []*xmlNode
}

// parseXML строит дерево элементов. Кодировки, отличные от UTF-8,
// декодируются по объявлению в прологе.
func parseXML(r io.Reader) (*xmlNode, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("empty xml document")
	}
	return root, nil
}

// toJSON: лист → текст (null, если пусто); иначе объект дочерних
// элементов. Повторяющиеся теги собираются в массив.
func (n *xmlNode) toJSON() any {
	if len(n.children) == 0 {
		text := strings.TrimSpace(n.text.String())
		if text == "" {
			return nil
		}
		return text
	}
	obj := orderedmap.New()
	obj.SetEscapeHTML(false)
	for _, child := range n.children {
		val := child.toJSON()
		prev, exists := obj.Get(child.name)
		switch {
		case !exists:
			obj.Set(child.name, val)
		case isList(prev):
			obj.Set(child.name, append(prev.([]any), val))
		default:
			obj.Set(child.name, []any{prev, val})
		}
	}
	return obj
}

// isList: toJSON никогда не возвращает массив для одного элемента,
// поэтому массив в объекте означает уже собранный повторяющийся тег.
func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

func readXML(c *call) (*xmlNode, error) {
	f, err := c.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	root, err := parseXML(f)
	if err != nil {
		return nil, decodeErr(fmt.Errorf("invalid xml: %w", err))
	}
	return root, nil
}

// xmlToJSON — объект дочерних элементов корня.
func xmlToJSON(_ context.Context, c *call) error {
	root, err := readXML(c)
	if err != nil {
		return err
	}
	if len(root.children) == 0 {
		return writeJSON(c.w, orderedmap.New())
	}
	return writeJSON(c.w, root.toJSON())
}

// xmlToCSV — дочерние элементы корня считаются записями, их дочерние
// элементы — полями. Заголовок — объединение имён полей в порядке появления.
func xmlToCSV(_ context.Context, c *call) error {
	root, err := readXML(c)
	if err != nil {
		return err
	}
	if len(root.children) == 0 {
		return decodeErr(errors.New("xml root has no record elements"))
	}

	t := &table{}
	index := map[string]int{}
	for _, rec := range root.children {
		for _, field := range rec.children {
			if _, ok := index[field.name]; !ok {
				index[field.name] = len(t.header)
				t.header = append(t.header, field.name)
			}
		}
	}
	if len(t.header) == 0 {
		return decodeErr(errors.New("xml records have no fields"))
	}
	for _, rec := range root.children {
		row := make([]string, len(t.header))
		for _, field := range rec.children {
			row[index[field.name]] = strings.TrimSpace(field.text.String())
		}
		t.rows = append(t.rows, row)
	}
	return writeCSV(c.w, t)
}
