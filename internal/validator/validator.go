// Пакет validator — проверка допустимости входного файла перед конвертацией.
// Проверки выполняются по порядку: существование → расширение → размер →
// шаблоны безопасности. Первая неудачная проверка определяет результат.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
)

// Reason — машиночитаемая причина отказа.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonTooLarge          Reason = "too_large"
	ReasonSecurity          Reason = "security_violation"
)

// DefaultDenylist — подстроки имени файла, при наличии которых файл отклоняется.
// Грубый фильтр, а не песочница.
var DefaultDenylist = []string{
	"..",
	"\x00",
	".cmd.",
	".com.",
	".bat.",
	".exe.",
	".dll.",
	".vbs.",
	".js.",
	"cmd.exe",
	"command.com",
	"autoexec.bat",
}

// Outcome — результат валидации.
type Outcome struct {
	Valid             bool            `json:"valid"`
	Reason            Reason          `json:"reason,omitempty"`
	Error             string          `json:"error,omitempty"`
	Details           string          `json:"details,omitempty"`
	Extension         string          `json:"extension,omitempty"`
	FileSize          int64           `json:"file_size,omitempty"`
	FileSizeFormatted string          `json:"file_size_formatted,omitempty"`
	Category          format.Category `json:"category,omitempty"`
	MaxSize           int64           `json:"max_size,omitempty"`
	MaxSizeFormatted  string          `json:"max_size_formatted,omitempty"`
}

// Validator проверяет файлы по allow-list расширений, лимитам категорий
// и списку опасных подстрок. Безопасен для конкурентного использования.
type Validator struct {
	fs       afero.Fs
	allowed  map[string]bool
	sorted   []string
	denylist []string
}

// Option — функциональная опция Validator.
type Option func(*Validator)

// WithAllowed сужает allow-list до указанных расширений.
// Расширения, отсутствующие в реестре форматов, игнорируются.
func WithAllowed(exts []string) Option {
	return func(v *Validator) {
		if len(exts) == 0 {
			return
		}
		v.allowed = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = format.Normalize(ext)
			if format.IsKnown(ext) {
				v.allowed[ext] = true
			}
		}
	}
}

// WithDenylist заменяет список опасных подстрок.
func WithDenylist(patterns []string) Option {
	return func(v *Validator) {
		v.denylist = make([]string, len(patterns))
		for i, p := range patterns {
			v.denylist[i] = strings.ToLower(p)
		}
	}
}

// New создаёт Validator поверх файловой системы fs.
// По умолчанию allow-list совпадает с реестром форматов.
func New(fs afero.Fs, opts ...Option) *Validator {
	v := &Validator{fs: fs, denylist: DefaultDenylist, allowed: make(map[string]bool)}
	for _, ext := range format.All() {
		v.allowed[ext] = true
	}
	for _, opt := range opts {
		opt(v)
	}
	for ext := range v.allowed {
		v.sorted = append(v.sorted, ext)
	}
	sort.Strings(v.sorted)
	return v
}

// Allowed возвращает отсортированный allow-list.
func (v *Validator) Allowed() []string {
	out := make([]string, len(v.sorted))
	copy(out, v.sorted)
	return out
}

// IsAllowed сообщает, допустимо ли расширение имени файла.
func (v *Validator) IsAllowed(filename string) bool {
	return v.allowed[format.ExtOf(filename)]
}

// Validate проверяет файл path, объявленный клиентом под именем declaredFilename.
// Расширение берётся из declaredFilename, а не из path.
func (v *Validator) Validate(path, declaredFilename string) Outcome {
	// 1. Существование
	info, err := v.fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Outcome{
			Reason: ReasonNotFound,
			Error:  "file not found",
		}
	}

	// 2. Расширение
	ext := format.ExtOf(declaredFilename)
	if !v.allowed[ext] {
		return Outcome{
			Reason:    ReasonUnsupportedFormat,
			Error:     fmt.Sprintf("unsupported format .%s; allowed: %s", ext, strings.Join(v.sorted, ", ")),
			Extension: ext,
		}
	}

	// 3. Размер
	size := info.Size()
	maxSize := format.MaxSizeOf(ext)
	if size > maxSize {
		return Outcome{
			Reason: ReasonTooLarge,
			Error: fmt.Sprintf("file too large: %s exceeds the %s limit for .%s",
				format.FormatSize(size), format.FormatSize(maxSize), ext),
			Extension:         ext,
			FileSize:          size,
			FileSizeFormatted: format.FormatSize(size),
			MaxSize:           maxSize,
			MaxSizeFormatted:  format.FormatSize(maxSize),
		}
	}

	// 4. Шаблоны безопасности
	if pattern, bad := v.matchDenylist(declaredFilename); bad {
		return Outcome{
			Reason:    ReasonSecurity,
			Error:     "security violation: filename contains a forbidden pattern",
			Details:   fmt.Sprintf("pattern %q", pattern),
			Extension: ext,
		}
	}

	return Outcome{
		Valid:             true,
		Extension:         ext,
		FileSize:          size,
		FileSizeFormatted: format.FormatSize(size),
		Category:          format.CategoryOf(ext),
		MaxSize:           maxSize,
		MaxSizeFormatted:  format.FormatSize(maxSize),
	}
}

// matchDenylist ищет первую опасную подстроку в имени без учёта регистра.
func (v *Validator) matchDenylist(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, p := range v.denylist {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
