package convert

import (
	"os/exec"
	"sort"
	"strings"
)

// Capability — именованная возможность движка конвертации.
type Capability string

const (
	// CapImage — декодирование и кодирование растровых изображений
	CapImage Capability = "image"
	// CapWebPEncode — кодирование WebP (требует cgo и libwebp)
	CapWebPEncode Capability = "webp-encode"
	// CapPDFWrite — создание PDF-документов
	CapPDFWrite Capability = "pdf-write"
	// CapPDFText — извлечение текста из PDF
	CapPDFText Capability = "pdf-text"
	// CapPDFRender — растеризация страниц PDF (внешний pdftoppm)
	CapPDFRender Capability = "pdf-render"
	// CapDocx — чтение и запись DOCX
	CapDocx Capability = "docx"
	// CapSpreadsheet — чтение и запись XLSX
	CapSpreadsheet Capability = "spreadsheet"
)

// Capabilities — набор доступных возможностей.
type Capabilities map[Capability]bool

// Has сообщает о наличии возможности.
func (c Capabilities) Has(cap Capability) bool {
	return c[cap]
}

// List возвращает отсортированный список доступных возможностей.
func (c Capabilities) List() []string {
	out := make([]string, 0, len(c))
	for cap, ok := range c {
		if ok {
			out = append(out, string(cap))
		}
	}
	sort.Strings(out)
	return out
}

func (c Capabilities) missing(required []Capability) []Capability {
	var out []Capability
	for _, cap := range required {
		if !c[cap] {
			out = append(out, cap)
		}
	}
	return out
}

func (c Capabilities) clone() Capabilities {
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func joinCaps(caps []Capability) string {
	s := make([]string, len(caps))
	for i, c := range caps {
		s[i] = string(c)
	}
	return strings.Join(s, ", ")
}

// DetectCapabilities определяет набор возможностей окружения.
// Возвращает также путь к pdftoppm (пустой, если не найден).
func DetectCapabilities(pdftoppmPath string) (Capabilities, string) {
	caps := Capabilities{
		CapImage:       true,
		CapPDFWrite:    true,
		CapPDFText:     true,
		CapDocx:        true,
		CapSpreadsheet: true,
		CapWebPEncode:  webpEncoderAvailable,
	}

	name := pdftoppmPath
	if name == "" {
		name = "pdftoppm"
	}
	if path, err := exec.LookPath(name); err == nil {
		caps[CapPDFRender] = true
		return caps, path
	}
	caps[CapPDFRender] = false
	return caps, ""
}
