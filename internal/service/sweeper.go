// sweeper.go — фоновая очистка файлов с истёкшим сроком хранения.
//
// Каждый цикл сканирует области хранения (incoming и converted),
// вычисляет возраст файла как now − mtime и удаляет файлы старше
// порога хранения. Удаление best-effort: ошибка по одному файлу
// логируется и не прерывает цикл, уже удалённый файл — не ошибка.
//
// Запускается как горутина с периодическим тикером (CM_CLEANUP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
)

// Prometheus метрики очистки
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_sweep_runs_total",
		Help: "Общее количество циклов очистки",
	})

	sweepFilesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых очисткой",
	}, []string{"area"})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_sweep_errors_total",
		Help: "Общее количество ошибок удаления при очистке",
	})

	sweepBytesFreedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_sweep_bytes_freed_total",
		Help: "Общий объём освобождённого места в байтах",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_sweep_duration_seconds",
		Help:    "Длительность цикла очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// Area — именованная область хранения, обслуживаемая очисткой.
type Area struct {
	Name  string
	Store *filestore.FileStore
}

// SweepResult — результат одного цикла очистки.
type SweepResult struct {
	// Scanned — количество просмотренных файлов
	Scanned int `json:"scanned"`
	// Deleted — количество удалённых файлов
	Deleted int `json:"deleted"`
	// Errors — количество ошибок удаления
	Errors int `json:"errors"`
	// FreedBytes — суммарный размер удалённых файлов
	FreedBytes int64 `json:"freed_bytes"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"duration"`
}

// Sweeper — сервис фоновой очистки устаревших файлов.
type Sweeper struct {
	areas     []Area
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper создаёт сервис очистки.
func NewSweeper(
	areas []Area,
	interval time.Duration,
	retention time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		areas:     areas,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Retention возвращает порог хранения.
func (s *Sweeper) Retention() time.Duration {
	return s.retention
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Первый цикл выполняется сразу.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Очистка запущена",
		slog.String("interval", s.interval.String()),
		slog.String("retention", s.retention.String()),
	)
}

// Stop останавливает фоновый процесс и дожидается завершения текущего цикла.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки и возвращает его результат.
// Потокобезопасен: параллельные вызовы выполняются последовательно.
// Отмена ctx прерывает цикл между файлами.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	cutoff := s.now().Add(-s.retention)

	s.logger.Debug("Цикл очистки начат", slog.Time("cutoff", cutoff))

	for _, area := range s.areas {
		if ctx.Err() != nil {
			break
		}
		s.sweepArea(ctx, area, cutoff, result)
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepBytesFreedTotal.Add(float64(result.FreedBytes))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Цикл очистки завершён",
		slog.Int("scanned", result.Scanned),
		slog.Int("deleted", result.Deleted),
		slog.Int("errors", result.Errors),
		slog.String("freed", humanize.IBytes(uint64(result.FreedBytes))),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepArea удаляет устаревшие файлы одной области.
func (s *Sweeper) sweepArea(ctx context.Context, area Area, cutoff time.Time, result *SweepResult) {
	files, err := area.Store.List()
	if err != nil {
		s.logger.Error("Очистка: ошибка чтения области",
			slog.String("area", area.Name),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}

	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		result.Scanned++

		if !f.ModTime.Before(cutoff) {
			continue
		}

		deleted, err := area.Store.Delete(f.Name)
		if err != nil {
			s.logger.Error("Очистка: ошибка удаления файла",
				slog.String("area", area.Name),
				slog.String("file", f.Name),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		if !deleted {
			// Файл уже удалён обработчиком запроса
			continue
		}

		s.logger.Debug("Очистка: файл удалён",
			slog.String("area", area.Name),
			slog.String("file", f.Name),
			slog.Duration("age", s.now().Sub(f.ModTime)),
		)
		sweepFilesDeletedTotal.WithLabelValues(area.Name).Inc()
		result.Deleted++
		result.FreedBytes += f.Size
	}
}
