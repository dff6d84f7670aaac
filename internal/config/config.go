// Пакет config — загрузка и валидация конфигурации Converter Module
// из переменных окружения (и необязательного .env файла).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Converter Module.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра (вершина графа topologymetrics)
	ServiceID string
	// Директория входящих файлов
	IncomingDir string
	// Директория результатов конвертации
	ConvertedDir string
	// Разрешённые расширения (подмножество реестра форматов)
	AllowedExtensions []string

	// Качество JPEG/WebP по умолчанию (1-100)
	ImageQuality int
	// Максимальная сторона изображения по умолчанию
	ImageMaxDimension int
	// Разрешение растеризации PDF по умолчанию (dpi)
	PDFResolution int
	// Ограничение длительности одной конвертации
	ConversionTimeout time.Duration
	// Копировать файл без конвертации, если правило не найдено
	LegacyCopyFallback bool
	// Путь к pdftoppm (пусто — поиск в PATH)
	PdftoppmPath string

	// Интервал очистки
	CleanupInterval time.Duration
	// Срок хранения входных файлов и результатов
	FileRetention time.Duration
	// Размер кэша заданий конвертации
	JobCacheSize int

	// URL JWKS endpoint (пусто — maintenance endpoints без аутентификации)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификата JWKS endpoint
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (CM_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя зависимости в метриках topologymetrics (CM_DEPHEALTH_DEP_NAME)
	DephealthDepName string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string
}

// Load загружает .env (если есть) и конфигурацию из переменных окружения,
// валидирует значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// CM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("CM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CM_SERVICE_ID — идентификатор экземпляра (по умолчанию "converter-module")
	cfg.ServiceID = getEnvDefault("CM_SERVICE_ID", "converter-module")

	// CM_INCOMING_DIR, CM_CONVERTED_DIR — области хранения
	cfg.IncomingDir = getEnvDefault("CM_INCOMING_DIR", "uploads")
	cfg.ConvertedDir = getEnvDefault("CM_CONVERTED_DIR", "converted")
	if cfg.IncomingDir == cfg.ConvertedDir {
		return nil, fmt.Errorf("CM_CONVERTED_DIR: должна отличаться от CM_INCOMING_DIR (%s)", cfg.IncomingDir)
	}

	// CM_ALLOWED_EXTENSIONS — список через запятую (по умолчанию все форматы реестра)
	cfg.AllowedExtensions, err = parseExtensions(getEnvDefault("CM_ALLOWED_EXTENSIONS", ""))
	if err != nil {
		return nil, fmt.Errorf("CM_ALLOWED_EXTENSIONS: %w", err)
	}

	// CM_IMAGE_QUALITY — качество JPEG/WebP (по умолчанию 85)
	cfg.ImageQuality, err = getEnvIntRange("CM_IMAGE_QUALITY", 85, 1, 100)
	if err != nil {
		return nil, err
	}

	// CM_IMAGE_MAX_DIMENSION — максимальная сторона изображения (по умолчанию 2048)
	cfg.ImageMaxDimension, err = getEnvIntRange("CM_IMAGE_MAX_DIMENSION", 2048, 16, 16384)
	if err != nil {
		return nil, err
	}

	// CM_PDF_RESOLUTION — dpi растеризации PDF (по умолчанию 300)
	cfg.PDFResolution, err = getEnvIntRange("CM_PDF_RESOLUTION", 300, 36, 1200)
	if err != nil {
		return nil, err
	}

	// CM_CONVERSION_TIMEOUT — таймаут одной конвертации (по умолчанию 2m)
	cfg.ConversionTimeout, err = getEnvPositiveDuration("CM_CONVERSION_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	// CM_LEGACY_COPY_FALLBACK — копирование вместо отказа (по умолчанию false)
	cfg.LegacyCopyFallback, err = getEnvBool("CM_LEGACY_COPY_FALLBACK", false)
	if err != nil {
		return nil, fmt.Errorf("CM_LEGACY_COPY_FALLBACK: %w", err)
	}

	// CM_PDFTOPPM_PATH — путь к pdftoppm (опционально)
	cfg.PdftoppmPath = getEnvDefault("CM_PDFTOPPM_PATH", "")

	// CM_CLEANUP_INTERVAL — интервал очистки (по умолчанию 1h)
	cfg.CleanupInterval, err = getEnvPositiveDuration("CM_CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	// CM_FILE_RETENTION — срок хранения файлов (по умолчанию 24h)
	cfg.FileRetention, err = getEnvPositiveDuration("CM_FILE_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	// CM_JOB_CACHE_SIZE — размер кэша заданий (по умолчанию 1000)
	cfg.JobCacheSize, err = getEnvIntRange("CM_JOB_CACHE_SIZE", 1000, 1, 1_000_000)
	if err != nil {
		return nil, err
	}

	// CM_JWKS_URL — опциональный; без него maintenance endpoints открыты
	cfg.JWKSUrl = getEnvDefault("CM_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("CM_JWKS_CA_CERT", "")

	cfg.TLSSkipVerify, err = getEnvBool("CM_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("CM_TLS_SKIP_VERIFY: %w", err)
	}

	// CM_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvPositiveDuration("CM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	// CM_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("CM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	// CM_JWT_LEEWAY — допуск по времени (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("CM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_JWT_LEEWAY: %w", err)
	}

	// CM_TLS_CERT, CM_TLS_KEY — TLS включается, только если заданы оба
	cfg.TLSCert = getEnvDefault("CM_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("CM_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("CM_TLS_CERT и CM_TLS_KEY должны задаваться вместе")
	}

	cfg.HTTPReadTimeout, err = getEnvPositiveDuration("CM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	// Запись ответа включает синхронную конвертацию
	cfg.HTTPWriteTimeout, err = getEnvPositiveDuration("CM_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("CM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	// CM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvPositiveDuration("CM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	// CM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	// CM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// CM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "converter-module")
	cfg.DephealthDepName = getEnvDefault("CM_DEPHEALTH_DEP_NAME", "admin-jwks")
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// Формат json — slog.JSONHandler, text — консольный обработчик charmbracelet/log.
func SetupLogger(cfg *Config) *slog.Logger {
	logger := NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер в заданном формате без изменения глобального.
func NewLogger(w io.Writer, logFormat string, level slog.Level) *slog.Logger {
	if logFormat == "text" {
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := getEnvDefault(key, "")
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvIntRange — getEnvInt с проверкой диапазона [lo, hi].
func getEnvIntRange(key string, defaultVal, lo, hi int) (int, error) {
	n, err := getEnvInt(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s: значение %d вне допустимого диапазона %d-%d", key, n, lo, hi)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := getEnvDefault(key, "")
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := getEnvDefault(key, "")
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration, требующий значение > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %s", key, d)
	}
	return d, nil
}

// parseExtensions разбирает список расширений через запятую.
// Пустой список означает все форматы реестра; неизвестное расширение — ошибка.
func parseExtensions(val string) ([]string, error) {
	if val == "" {
		return format.All(), nil
	}
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(val, ",") {
		ext := format.Normalize(part)
		if ext == "" || seen[ext] {
			continue
		}
		if !format.IsKnown(ext) {
			return nil, fmt.Errorf("неизвестный формат %q", ext)
		}
		seen[ext] = true
		out = append(out, ext)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("список пуст")
	}
	return out, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
