// Пакет convert — движок конвертации файлов.
//
// Движок выбирает обработчик по упорядоченной таблице правил
// (точные пары расширений раньше категорийных), выполняет его и
// возвращает единообразный Result. Набор возможностей (capabilities)
// определяется один раз при создании движка; пара, требующая
// отсутствующей возможности, считается неподдерживаемой.
//
// Движок не хранит изменяемого состояния между вызовами: все параметры
// конкретной конвертации передаются в Options.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
)

// Значения Options по умолчанию.
const (
	DefaultImageQuality  = 85
	DefaultMaxDimension  = 2048
	DefaultPDFResolution = 300
	DefaultTimeout       = 2 * time.Minute
)

// Options — параметры одной конвертации. Нулевые поля заменяются
// значениями по умолчанию движка.
type Options struct {
	// ImageQuality — качество JPEG/WebP (1-100)
	ImageQuality int `json:"image_quality,omitempty"`
	// MaxDimension — максимальная сторона изображения в пикселях
	MaxDimension int `json:"max_dimension,omitempty"`
	// PDFResolution — разрешение растеризации PDF в dpi
	PDFResolution int `json:"pdf_resolution,omitempty"`
}

// merge дополняет нулевые поля значениями def и ограничивает диапазоны.
func (o Options) merge(def Options) Options {
	if o.ImageQuality <= 0 {
		o.ImageQuality = def.ImageQuality
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = def.MaxDimension
	}
	if o.PDFResolution <= 0 {
		o.PDFResolution = def.PDFResolution
	}
	o.ImageQuality = clamp(o.ImageQuality, 1, 100)
	o.MaxDimension = clamp(o.MaxDimension, 16, 16384)
	o.PDFResolution = clamp(o.PDFResolution, 36, 1200)
	return o
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Request — запрос на конвертацию.
type Request struct {
	// InputPath — путь к входному файлу (не изменяется)
	InputPath string
	// OutputPath — путь результата; до успешного завершения файл не существует
	OutputPath string
	// SourceExt — расширение входа; по умолчанию берётся из InputPath
	SourceExt string
	// TargetExt — целевое расширение
	TargetExt string
	// DisplayName — имя файла для заголовков HTML; по умолчанию базовое имя InputPath
	DisplayName string
}

// Kind — класс ошибки конвертации.
type Kind string

const (
	KindUnsupported Kind = "unsupported_pair"
	KindDependency  Kind = "dependency_unavailable"
	KindDecode      Kind = "decode_error"
	KindEncode      Kind = "encode_error"
	KindExtraction  Kind = "extraction_error"
	KindTimeout     Kind = "timeout"
	KindIO          Kind = "io_error"
	KindInternal    Kind = "internal_error"
)

// Failure — описание неудачной конвертации.
type Failure struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

func (f *Failure) Error() string {
	return f.Reason
}

// Result — результат конвертации: либо OutputPath (успех), либо Failure.
type Result struct {
	OutputPath string        `json:"output_path,omitempty"`
	Failure    *Failure      `json:"failure,omitempty"`
	Rule       string        `json:"rule,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// OK сообщает об успехе конвертации.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Err возвращает Failure как error (nil при успехе).
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

func failure(kind Kind, reasonFmt string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Reason: fmt.Sprintf(reasonFmt, args...)}}
}

func unsupported(src, target string) Result {
	return failure(KindUnsupported, "conversion from %s to %s not supported", src, target)
}

// Config — параметры движка.
type Config struct {
	// Defaults — значения Options по умолчанию
	Defaults Options
	// Timeout — ограничение длительности одной конвертации
	Timeout time.Duration
	// LegacyCopyFallback — копировать файл без конвертации, если ни одно
	// правило не подошло (совместимость со старым поведением)
	LegacyCopyFallback bool
	// PdftoppmPath — путь к pdftoppm; пустой — поиск в PATH
	PdftoppmPath string
}

// Engine — движок конвертации. Безопасен для конкурентного использования.
type Engine struct {
	fs       afero.Fs
	rules    []rule
	caps     Capabilities
	defaults Options
	timeout  time.Duration
	pdftoppm string
	legacy   bool
	logger   *slog.Logger
}

// NewEngine создаёт движок и определяет набор возможностей.
func NewEngine(fs afero.Fs, cfg Config, logger *slog.Logger) *Engine {
	caps, pdftoppm := DetectCapabilities(cfg.PdftoppmPath)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e := &Engine{
		fs:    fs,
		rules: defaultRules(),
		caps:  caps,
		defaults: cfg.Defaults.merge(Options{
			ImageQuality:  DefaultImageQuality,
			MaxDimension:  DefaultMaxDimension,
			PDFResolution: DefaultPDFResolution,
		}),
		timeout:  timeout,
		pdftoppm: pdftoppm,
		legacy:   cfg.LegacyCopyFallback,
		logger:   logger.With(slog.String("component", "convert")),
	}
	if cfg.LegacyCopyFallback {
		e.rules = append(e.rules, copyFallbackRule())
	}

	e.logger.Info("Движок конвертации инициализирован",
		slog.Any("capabilities", caps.List()),
		slog.Int("rules", len(e.rules)),
		slog.Bool("legacy_copy_fallback", cfg.LegacyCopyFallback),
	)
	return e
}

// Capabilities возвращает набор возможностей, определённый при старте.
func (e *Engine) Capabilities() Capabilities {
	return e.caps.clone()
}

// LegacyCopyFallback сообщает, включено ли копирование без конвертации
// для пар без правила.
func (e *Engine) LegacyCopyFallback() bool {
	return e.legacy
}

// Defaults возвращает значения Options по умолчанию.
func (e *Engine) Defaults() Options {
	return e.defaults
}

// Resolve возвращает правило для пары расширений.
// Если правило найдено, но требует отсутствующей возможности,
// возвращается также список недостающих возможностей.
func (e *Engine) resolve(src, target string) (*rule, []Capability) {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.matches(src, target) {
			continue
		}
		return r, e.caps.missing(r.requires)
	}
	return nil, nil
}

// Supports сообщает, поддерживается ли пара при текущем наборе возможностей.
func (e *Engine) Supports(src, target string) bool {
	src, target = format.Normalize(src), format.Normalize(target)
	if src == target || !format.IsKnown(src) || !format.IsKnown(target) {
		return false
	}
	r, missing := e.resolve(src, target)
	return r != nil && !r.fallback && len(missing) == 0
}

// Targets возвращает отсортированный список форматов, в которые можно
// конвертировать src при текущем наборе возможностей.
func (e *Engine) Targets(src string) []string {
	var out []string
	for _, target := range format.All() {
		if e.Supports(src, target) {
			out = append(out, target)
		}
	}
	sort.Strings(out)
	return out
}

// Convert выполняет конвертацию req с параметрами opts.
// Никогда не паникует и не возвращает частичный результат: при неудаче
// файл по OutputPath не создаётся.
func (e *Engine) Convert(ctx context.Context, req Request, opts Options) Result {
	start := time.Now()
	res := e.convert(ctx, req, opts)
	res.Duration = time.Since(start)

	attrs := []any{
		slog.String("input", req.InputPath),
		slog.String("target", req.TargetExt),
		slog.String("rule", res.Rule),
		slog.Duration("duration", res.Duration),
	}
	if res.OK() {
		e.logger.Debug("Конвертация выполнена", attrs...)
	} else {
		e.logger.Warn("Конвертация не выполнена",
			append(attrs,
				slog.String("kind", string(res.Failure.Kind)),
				slog.String("reason", res.Failure.Reason),
			)...,
		)
	}
	return res
}

func (e *Engine) convert(ctx context.Context, req Request, opts Options) Result {
	src := format.Normalize(req.SourceExt)
	if src == "" {
		src = format.ExtOf(req.InputPath)
	}
	target := format.Normalize(req.TargetExt)

	if target == "" {
		return failure(KindUnsupported, "target format not specified")
	}
	if src == target {
		return unsupported(src, target)
	}
	if req.OutputPath == "" || filepath.Clean(req.OutputPath) == filepath.Clean(req.InputPath) {
		return failure(KindIO, "output path must differ from input path")
	}

	r, missing := e.resolve(src, target)
	if r == nil {
		return unsupported(src, target)
	}
	if len(missing) > 0 {
		res := failure(KindDependency, "conversion from %s to %s not supported: %s unavailable",
			src, target, joinCaps(missing))
		res.Rule = r.name
		return res
	}

	info, err := e.fs.Stat(req.InputPath)
	if err != nil || !info.Mode().IsRegular() {
		res := failure(KindIO, "input file not found")
		res.Rule = r.name
		return res
	}

	if err := ctx.Err(); err != nil {
		res := failure(KindTimeout, "conversion cancelled: %v", err)
		res.Rule = r.name
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	display := req.DisplayName
	if display == "" {
		display = filepath.Base(req.InputPath)
	}
	c := &call{
		fs:       e.fs,
		in:       req.InputPath,
		inSize:   info.Size(),
		src:      src,
		target:   target,
		name:     display,
		opts:     opts.merge(e.defaults),
		pdftoppm: e.pdftoppm,
	}

	res := e.run(ctx, r, c, req.OutputPath)
	res.Rule = r.name
	return res
}

// Состояния владения результатом между рабочей горутиной и таймаутом.
const (
	stateRunning int32 = iota
	stateFinished
	stateAbandoned
)

// run выполняет обработчик в отдельной горутине, записывая во временный
// файл рядом с outputPath. Результат публикуется атомарным rename только
// если обработчик завершился раньше таймаута; иначе временный файл удаляется.
func (e *Engine) run(ctx context.Context, r *rule, c *call, outputPath string) Result {
	dir := filepath.Dir(outputPath)
	if err := e.fs.MkdirAll(dir, 0o750); err != nil {
		return failure(KindIO, "cannot create output directory: %v", err)
	}
	tmp, err := afero.TempFile(e.fs, dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return failure(KindIO, "cannot create output file: %v", err)
	}
	tmpPath := tmp.Name()

	var state atomic.Int32
	done := make(chan Result, 1)

	go func() {
		herr := e.invoke(ctx, r, c, tmp)
		if cerr := tmp.Close(); herr == nil && cerr != nil {
			herr = &kindError{kind: KindIO, err: cerr}
		}

		if !state.CompareAndSwap(stateRunning, stateFinished) {
			// Таймаут уже вернул результат вызывающему
			_ = e.fs.Remove(tmpPath)
			return
		}

		if herr != nil {
			_ = e.fs.Remove(tmpPath)
			done <- errorResult(c, herr)
			return
		}
		if err := e.fs.Rename(tmpPath, outputPath); err != nil {
			_ = e.fs.Remove(tmpPath)
			done <- failure(KindIO, "cannot publish output file: %v", err)
			return
		}
		done <- Result{OutputPath: outputPath}
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if state.CompareAndSwap(stateRunning, stateAbandoned) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return failure(KindTimeout, "conversion from %s to %s timed out after %s",
					c.src, c.target, e.timeout)
			}
			return failure(KindTimeout, "conversion cancelled: %v", ctx.Err())
		}
		// Горутина успела завершиться: её результат уже в канале
		return <-done
	}
}

// invoke вызывает обработчик, превращая панику в ошибку
// и очищая промежуточные файлы.
func (e *Engine) invoke(ctx context.Context, r *rule, c *call, out afero.File) (err error) {
	defer c.cleanup()
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("Паника в обработчике конвертации",
				slog.String("rule", r.name),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			err = &kindError{kind: KindInternal, err: fmt.Errorf("panic: %v", p)}
		}
	}()

	c.w = out
	return r.run(ctx, c)
}

func errorResult(c *call, err error) Result {
	var ke *kindError
	if errors.As(err, &ke) {
		return failure(ke.kind, "conversion from %s to %s failed: %v", c.src, c.target, ke.err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failure(KindTimeout, "conversion from %s to %s interrupted: %v", c.src, c.target, err)
	}
	return failure(KindInternal, "conversion from %s to %s failed: %v", c.src, c.target, err)
}

// kindError — ошибка обработчика с классом.
type kindError struct {
	kind Kind
	err  error
}

func (k *kindError) Error() string { return string(k.kind) + ": " + k.err.Error() }
func (k *kindError) Unwrap() error { return k.err }

func decodeErr(err error) error     { return wrapKind(KindDecode, err) }
func encodeErr(err error) error     { return wrapKind(KindEncode, err) }
func extractionErr(err error) error { return wrapKind(KindExtraction, err) }
func ioErr(err error) error         { return wrapKind(KindIO, err) }

func wrapKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

// call — контекст одного вызова обработчика.
type call struct {
	fs       afero.Fs
	in       string
	inSize   int64
	src      string
	target   string
	name     string
	opts     Options
	pdftoppm string

	w        io.Writer
	cleanups []func()
}

// open открывает входной файл.
func (c *call) open() (afero.File, error) {
	f, err := c.fs.Open(c.in)
	if err != nil {
		return nil, ioErr(err)
	}
	return f, nil
}

// readAll читает входной файл целиком.
func (c *call) readAll() ([]byte, error) {
	data, err := afero.ReadFile(c.fs, c.in)
	if err != nil {
		return nil, ioErr(err)
	}
	return data, nil
}

// readText читает входной файл как UTF-8 текст, отбрасывая некорректные
// последовательности и BOM.
func (c *call) readText() (string, error) {
	data, err := c.readAll()
	if err != nil {
		return "", err
	}
	return decodeText(data), nil
}

// write записывает строку в выходной поток.
func (c *call) write(s string) error {
	if _, err := io.WriteString(c.w, s); err != nil {
		return ioErr(err)
	}
	return nil
}

// tempDir создаёт временную директорию ОС для внешних инструментов;
// удаляется после завершения обработчика.
func (c *call) tempDir() (string, error) {
	dir, err := os.MkdirTemp("", "converter-*")
	if err != nil {
		return "", ioErr(err)
	}
	c.cleanups = append(c.cleanups, func() { _ = os.RemoveAll(dir) })
	return dir, nil
}

func (c *call) cleanup() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
	c.cleanups = nil
}

func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\uFEFF")
	return strings.ToValidUTF8(s, "")
}
