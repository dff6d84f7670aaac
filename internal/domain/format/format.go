// Пакет format — реестр форматов: таксономия расширений по категориям
// и лимиты размера для каждой категории. Чистые данные и поиск, без I/O.
package format

import (
	"fmt"
	"sort"
	"strings"
)

// Category — категория формата файла.
type Category string

const (
	Image        Category = "image"
	Document     Category = "document"
	Spreadsheet  Category = "spreadsheet"
	Presentation Category = "presentation"
	Data         Category = "data"
	Archive      Category = "archive"
	Audio        Category = "audio"
	Video        Category = "video"
	Code         Category = "code"
	Unknown      Category = "unknown"
)

const (
	KB int64 = 1024
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// DefaultMaxSize — лимит для категорий без явного ограничения (и для Unknown).
const DefaultMaxSize = 500 * MB

// categoryDef — строка таблицы реестра.
type categoryDef struct {
	category   Category
	key        string
	extensions []string
	maxSize    int64
}

// Порядок строк важен: расширение принадлежит первой категории, в которой встречается.
var table = []categoryDef{
	{Image, "image_formats", []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp", "ico", "svg"}, 100 * MB},
	{Document, "document_formats", []string{"pdf", "txt", "docx", "doc", "rtf", "md", "html", "htm"}, 200 * MB},
	{Spreadsheet, "spreadsheet_formats", []string{"xlsx", "xls", "csv"}, 100 * MB},
	{Presentation, "presentation_formats", []string{"pptx", "ppt"}, 200 * MB},
	{Data, "data_formats", []string{"json", "xml"}, 50 * MB},
	{Archive, "archive_formats", []string{"zip", "rar", "7z", "tar", "gz"}, 500 * MB},
	{Audio, "audio_formats", []string{"mp3", "wav", "flac", "aac", "ogg"}, 200 * MB},
	{Video, "video_formats", []string{"mp4", "avi", "mov", "wmv", "flv", "mkv", "webm"}, 1000 * MB},
	{Code, "code_formats", []string{
		"py", "js", "css", "php", "java", "cpp", "c", "cs", "rb", "go", "rs",
		"log", "ini", "cfg", "conf", "yaml", "yml", "toml",
	}, 10 * MB},
}

var (
	byExt   = map[string]Category{}
	ceiling = map[Category]int64{}
	all     []string
)

func init() {
	for _, def := range table {
		ceiling[def.category] = def.maxSize
		for _, ext := range def.extensions {
			if _, dup := byExt[ext]; dup {
				continue
			}
			byExt[ext] = def.category
			all = append(all, ext)
		}
	}
	sort.Strings(all)
}

// Normalize приводит расширение к каноническому виду: нижний регистр, без ведущей точки.
func Normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ExtOf возвращает нормализованное расширение имени файла ("" если расширения нет).
func ExtOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	if strings.ContainsAny(name[i:], `/\`) {
		return ""
	}
	return Normalize(name[i+1:])
}

// CategoryOf возвращает категорию расширения. Неизвестные расширения → Unknown.
func CategoryOf(ext string) Category {
	if c, ok := byExt[Normalize(ext)]; ok {
		return c
	}
	return Unknown
}

// IsKnown сообщает, входит ли расширение в реестр.
func IsKnown(ext string) bool {
	_, ok := byExt[Normalize(ext)]
	return ok
}

// MaxSizeOf возвращает лимит размера в байтах для расширения.
func MaxSizeOf(ext string) int64 {
	return MaxSizeFor(CategoryOf(ext))
}

// MaxSizeFor возвращает лимит размера категории.
func MaxSizeFor(c Category) int64 {
	if n, ok := ceiling[c]; ok {
		return n
	}
	return DefaultMaxSize
}

// Extensions возвращает отсортированные расширения категории.
func Extensions(c Category) []string {
	var out []string
	for ext, cat := range byExt {
		if cat == c {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// All возвращает отсортированный список всех известных расширений.
func All() []string {
	out := make([]string, len(all))
	copy(out, all)
	return out
}

// Categories возвращает категории реестра в порядке таблицы (без Unknown).
func Categories() []Category {
	out := make([]Category, 0, len(table))
	for _, def := range table {
		out = append(out, def.category)
	}
	return out
}

// Supported возвращает списки расширений по категориям в виде,
// пригодном для ответа API: ключи "image_formats", ..., "all_formats".
func Supported() map[string][]string {
	out := make(map[string][]string, len(table)+1)
	for _, def := range table {
		exts := make([]string, len(def.extensions))
		copy(exts, def.extensions)
		out[def.key] = exts
	}
	out["all_formats"] = All()
	return out
}

// Info — сведения о формате для API и CLI.
type Info struct {
	Supported        bool     `json:"supported"`
	Extension        string   `json:"extension"`
	Category         Category `json:"category,omitempty"`
	MaxSize          int64    `json:"max_size,omitempty"`
	MaxSizeFormatted string   `json:"max_size_formatted,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Describe возвращает Info для расширения.
func Describe(ext string) Info {
	ext = Normalize(ext)
	if !IsKnown(ext) {
		return Info{
			Extension: ext,
			Error:     fmt.Sprintf("format .%s is not supported", ext),
		}
	}
	maxSize := MaxSizeOf(ext)
	return Info{
		Supported:        true,
		Extension:        ext,
		Category:         CategoryOf(ext),
		MaxSize:          maxSize,
		MaxSizeFormatted: FormatSize(maxSize),
	}
}

// FormatSize форматирует размер в base-1024 единицах с двумя знаками после запятой.
func FormatSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f GB", size)
}
