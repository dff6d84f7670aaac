// jobs.go — реестр результатов конвертации (LRU-кэш с TTL).
// Обёртка над hashicorp/golang-lru/v2/expirable; срок жизни записи
// совпадает со сроком хранения файлов, чтобы задание не ссылалось
// на уже удалённый результат дольше одного цикла очистки.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики реестра заданий.
var (
	jobLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_job_lookups_total",
		Help: "Общее количество обращений к реестру заданий конвертации",
	}, []string{"result"})
)

// JobStatus — итоговое состояние задания.
type JobStatus string

const (
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job — запись о выполненной конвертации.
type Job struct {
	ID                  string    `json:"id"`
	Status              JobStatus `json:"status"`
	OriginalName        string    `json:"original_name"`
	SourceFormat        string    `json:"source_format"`
	TargetFormat        string    `json:"target_format"`
	InputSize           int64     `json:"input_size"`
	OutputName          string    `json:"output_name,omitempty"`
	OutputSize          int64     `json:"output_size,omitempty"`
	OutputSizeFormatted string    `json:"output_size_formatted,omitempty"`
	DownloadURL         string    `json:"download_url,omitempty"`
	Rule                string    `json:"rule,omitempty"`
	ErrorKind           string    `json:"error_kind,omitempty"`
	Error               string    `json:"error,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	DurationMs          int64     `json:"duration_ms"`
}

// JobRegistry хранит последние задания в памяти экземпляра.
type JobRegistry struct {
	cache *expirable.LRU[string, *Job]
}

// NewJobRegistry создаёт реестр на maxSize записей с временем жизни ttl.
func NewJobRegistry(maxSize int, ttl time.Duration) *JobRegistry {
	return &JobRegistry{cache: expirable.NewLRU[string, *Job](maxSize, nil, ttl)}
}

// Get возвращает задание по идентификатору.
func (r *JobRegistry) Get(id string) (*Job, bool) {
	job, ok := r.cache.Get(id)
	if ok {
		jobLookupsTotal.WithLabelValues("hit").Inc()
		return job, true
	}
	jobLookupsTotal.WithLabelValues("miss").Inc()
	return nil, false
}

// Put добавляет или заменяет задание.
func (r *JobRegistry) Put(job *Job) {
	r.cache.Add(job.ID, job)
}

// Len — текущее количество заданий.
func (r *JobRegistry) Len() int {
	return r.cache.Len()
}
