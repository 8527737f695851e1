package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job периодическая задача
type Job interface {
	Run(ctx context.Context) error
}

// namedJob задача с именем для логов
type namedJob struct {
	name string
	job  Job
}

// Scheduler запускает зарегистрированные задачи с заданным интервалом
type Scheduler struct {
	logger *zap.Logger
	jobs   []namedJob
}

// NewScheduler создает новый планировщик задач
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
	}
}

// AddJob добавляет задачу в планировщик
func (s *Scheduler) AddJob(name string, job Job) {
	s.jobs = append(s.jobs, namedJob{name: name, job: job})
}

// Start выполняет задачи сразу и затем каждые interval до отмены ctx.
// Неположительный интервал отключает планировщик.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("планировщик задач отключен")
		return
	}

	s.logger.Info("запуск планировщика задач",
		zap.Duration("interval", interval),
		zap.Int("jobs_count", len(s.jobs)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("остановка планировщика задач")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce последовательно выполняет все задачи. Ошибка задачи не останавливает остальные.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		s.logger.Debug("запуск задачи", zap.String("job", j.name))

		if err := j.job.Run(ctx); err != nil {
			s.logger.Error("ошибка выполнения задачи",
				zap.String("job", j.name),
				zap.Error(err))
			continue
		}

		s.logger.Debug("задача выполнена",
			zap.String("job", j.name),
			zap.Duration("duration", time.Since(start)))
	}
}
