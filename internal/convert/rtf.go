package convert

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

var (
	rtfToText = via(extractRTF, renderText)
	rtfToPDF  = via(extractRTF, renderPDF)
	rtfToHTML = via(extractRTF, renderHTML)
	rtfToDocx = via(extractRTF, renderDocx)
)

// Группы-назначения, содержимое которых не является текстом документа.
var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "headerl": true,
	"headerr": true, "footerl": true, "footerr": true, "object": true,
	"themedata": true, "listtable": true, "listoverridetable": true,
	"rsidtbl": true, "generator": true, "xmlnstbl": true,
	"datastore": true, "latentstyles": true, "colorschememapping": true,
	"fldinst": true, "filetbl": true, "revtbl": true,
}

var rtfSymbols = map[string]string{
	"par": "\n\n", "line": "\n", "tab": "\t", "page": "\n\n",
	"emdash": "—", "endash": "–", "bullet": "•",
	"lquote": "‘", "rquote": "’", "ldblquote": "“", "rdblquote": "”",
	"emspace": " ", "enspace": " ", "qmspace": " ",
}

func extractRTF(_ context.Context, c *call) (*document, error) {
	data, err := c.readAll()
	if err != nil {
		return nil, err
	}
	text, err := parseRTF(data)
	if err != nil {
		return nil, decodeErr(err)
	}
	return textDocument(text), nil
}

type rtfGroup struct {
	skip bool
	uc   int
}

// parseRTF извлекает простой текст из RTF. Форматирование отбрасывается,
// \'hh декодируется как cp1252, \uN — как UTF-16.
func parseRTF(data []byte) (string, error) {
	if !strings.HasPrefix(strings.TrimSpace(string(data[:min(len(data), 16)])), `{\rtf`) {
		return "", fmt.Errorf("not an rtf document")
	}

	var (
		out       strings.Builder
		stack     []rtfGroup
		cur       = rtfGroup{uc: 1}
		skipChars int
		surrogate rune
	)

	emit := func(s string) {
		if skipChars > 0 {
			skipChars--
			return
		}
		if !cur.skip {
			out.WriteString(s)
		}
	}

	for i := 0; i < len(data); i++ {
		ch := data[i]
		switch ch {
		case '{':
			stack = append(stack, cur)
			skipChars = 0
		case '}':
			if len(stack) == 0 {
				return out.String(), nil
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			skipChars = 0
		case '\r', '\n':
		case '\\':
			if i+1 >= len(data) {
				break
			}
			i++
			next := data[i]
			switch {
			case next == '\\' || next == '{' || next == '}':
				emit(string(next))
			case next == '\'':
				if i+2 < len(data) {
					b, err := strconv.ParseUint(string(data[i+1:i+3]), 16, 8)
					i += 2
					if err == nil {
						emit(string(charmap.Windows1252.DecodeByte(byte(b))))
					}
				}
			case next == '*':
				cur.skip = true
			case next == '~':
				emit(" ")
			case next == '_':
				emit("-")
			case next == '\n' || next == '\r':
				emit("\n")
			case isASCIILetter(next):
				start := i
				for i < len(data) && isASCIILetter(data[i]) {
					i++
				}
				word := string(data[start:i])

				numStart := i
				if i < len(data) && data[i] == '-' {
					i++
				}
				for i < len(data) && data[i] >= '0' && data[i] <= '9' {
					i++
				}
				param, hasParam := 0, i > numStart
				if hasParam {
					param, _ = strconv.Atoi(string(data[numStart:i]))
				}
				// Пробел-разделитель относится к управляющему слову
				if i >= len(data) || data[i] != ' ' {
					i--
				}

				switch {
				case rtfSkipDestinations[word]:
					cur.skip = true
				case word == "uc" && hasParam:
					cur.uc = param
				case word == "u" && hasParam:
					r := rune(param)
					if r < 0 {
						r += 65536
					}
					if utf16.IsSurrogate(r) && surrogate == 0 {
						surrogate = r
					} else {
						if surrogate != 0 {
							r = utf16.DecodeRune(surrogate, r)
							surrogate = 0
						}
						emit(string(r))
					}
					skipChars = cur.uc
				default:
					if s, ok := rtfSymbols[word]; ok {
						emit(s)
					}
				}
			}
		default:
			// Восьмибитные байты вне \'hh — тоже в кодировке \ansicpg1252.
			if ch >= 0x80 {
				emit(string(charmap.Windows1252.DecodeByte(ch)))
			} else {
				emit(string(rune(ch)))
			}
		}
	}
	return out.String(), nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// renderRTF записывает документ в RTF (cp1252 с \uN для остальных символов).
func renderRTF(ctx context.Context, c *call, doc *document) error {
	var b strings.Builder
	font := `\fswiss Helvetica`
	if doc.mono {
		font = `\fmodern Courier New`
	}
	b.WriteString(`{\rtf1\ansi\ansicpg1252\deff0{\fonttbl{\f0` + font + `;}}` + "\n")
	if doc.title != "" {
		b.WriteString(`{\info{\title ` + rtfEscape(doc.title) + `}}` + "\n")
	}
	b.WriteString(`\f0\fs22` + "\n")

	if doc.heading != "" {
		b.WriteString(`{\pard\sa240\b\fs32 ` + rtfEscape(doc.heading) + `\par}` + "\n")
	}
	spacing := `\sa200`
	if doc.lines {
		spacing = `\sa0`
	}
	for i, page := range doc.pages {
		if i > 0 {
			b.WriteString(`\page` + "\n")
		}
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.WriteString(`{\pard` + spacing + ` ` + rtfEscape(p) + `\par}` + "\n")
		}
	}
	b.WriteString("}\n")
	return c.write(b.String())
}

func rtfEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\line `)
		case r == '\t':
			b.WriteString(`\tab `)
		case r < 0x80:
			b.WriteRune(r)
		default:
			if enc, ok := charmap.Windows1252.EncodeRune(r); ok {
				fmt.Fprintf(&b, `\'%02x`, enc)
				continue
			}
			for _, u := range utf16.Encode([]rune{r}) {
				fmt.Fprintf(&b, `\u%d?`, int16(u))
			}
		}
	}
	return b.String()
}
