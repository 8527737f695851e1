package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	runs           *prometheus.CounterVec
	orphansDeleted prometheus.Counter

	// Гистограммы
	stageDuration *prometheus.HistogramVec
	audioBytes    prometheus.Histogram
}

// New создает метрики и регистрирует их в registerer
func New(logger *zap.Logger, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		logger: logger,

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "text_to_voice_runs_total",
				Help: "Количество запусков озвучки",
			},
			[]string{"status", "kind"}, // status: success, failed; kind: тип ошибки
		),

		orphansDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "text_to_voice_orphans_deleted_total",
				Help: "Количество удаленных осиротевших аудио файлов",
			},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "text_to_voice_stage_duration_seconds",
				Help:    "Время выполнения этапа озвучки в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"}, // load_record, resolve_text, synthesize, publish
		),

		audioBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "text_to_voice_audio_bytes",
				Help:    "Размер сгенерированного аудио в байтах",
				Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
			},
		),
	}

	registerer.MustRegister(
		m.runs,
		m.orphansDeleted,
		m.stageDuration,
		m.audioBytes,
	)

	return m
}

// ObserveStage записывает длительность этапа
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRun записывает результат запуска; kind пустой при успехе
func (m *Metrics) RecordRun(kind string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	if kind == "" {
		kind = "none"
	}

	m.runs.WithLabelValues(status, kind).Inc()
	m.logger.Debug("метрика запуска увеличена", zap.String("status", status), zap.String("kind", kind))
}

// RecordAudio записывает размер сгенерированного аудио
func (m *Metrics) RecordAudio(size int) {
	m.audioBytes.Observe(float64(size))
}

// RecordOrphansDeleted увеличивает счетчик удаленных файлов
func (m *Metrics) RecordOrphansDeleted(count int) {
	m.orphansDeleted.Add(float64(count))
}
