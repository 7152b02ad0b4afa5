package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/goroutine"
	"github.com/ignatzorin/escrow-engine/internal/logger"
)

// DueLister возвращает идентификаторы сделок с истёкшим дедлайном.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Applier применяет просроченное действие к одной сделке.
type Applier interface {
	ApplyDue(ctx context.Context, id uuid.UUID) (entity.AutoAction, error)
}

// Lease: распределённая аренда прохода: при нескольких экземплярах сервиса
// проход выполняет только тот, кто её получил.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type Source struct {
	Kind    valueobject.SubjectKind
	Due     DueLister
	Applier Applier
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	LeaseTTL    time.Duration
}

// Report: итоги одного прохода.
type Report struct {
	Orders      int  `json:"orders"`
	Submissions int  `json:"submissions"`
	Applied     int  `json:"applied"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	NotRun      bool `json:"not_run,omitempty"`
}

// Sweeper периодически применяет автоматические действия по истёкшим дедлайнам.
// Само действие выполняет сервис сделки под её блокировкой, поэтому повторный
// или параллельный проход ничего не выплачивает дважды.
type Sweeper struct {
	sources []Source
	lease   Lease
	cfg     Config
	now     func() time.Time
	running atomic.Bool
}

func New(cfg Config, lease Lease, now func() time.Time, sources ...Source) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{sources: sources, lease: lease, cfg: cfg, now: now}
}

// Start запускает проходы по тикеру до отмены контекста.
func (s *Sweeper) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		logger.Log.WithField("interval", s.cfg.Interval).Info("Планировщик дедлайнов запущен")
		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("Планировщик дедлайнов остановлен")
				return
			case <-ticker.C:
				goroutine.Run(func() {
					if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
						logger.Log.WithError(err).Error("Проход планировщика завершился с ошибкой")
					}
				})
			}
		}
	})
}

// RunOnce выполняет один проход по всем источникам. Если предыдущий проход
// ещё идёт или аренду держит другой экземпляр, проход пропускается.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	if !s.running.CompareAndSwap(false, true) {
		report.NotRun = true
		return report, nil
	}
	defer s.running.Store(false)

	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.cfg.LeaseTTL)
		if err != nil {
			return report, err
		}
		if !ok {
			report.NotRun = true
			logger.Log.Debug("Аренда планировщика занята другим экземпляром")
			return report, nil
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Log.WithError(err).Warn("Не удалось освободить аренду планировщика")
			}
		}()
	}

	started := time.Now()
	now := s.now()
	var applied, skipped, failed atomic.Int64

	for _, src := range s.sources {
		ids, err := src.Due.ListDue(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		switch src.Kind {
		case valueobject.SubjectKindOrder:
			report.Orders += len(ids)
		case valueobject.SubjectKindJob:
			report.Submissions += len(ids)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				var action entity.AutoAction
				var err error
				if goroutine.Run(func() { action, err = src.Applier.ApplyDue(gctx, id) }) {
					failed.Add(1)
					return nil
				}
				switch {
				case err != nil:
					failed.Add(1)
					logger.Subject(string(src.Kind), id.String()).WithError(err).Warn("Не удалось применить автоматическое действие")
				case action == entity.AutoActionNone:
					skipped.Add(1)
				default:
					applied.Add(1)
				}
				// ошибка одной сделки не останавливает проход
				return nil
			})
		}
		_ = g.Wait()
	}

	report.Applied = int(applied.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())

	entry := logger.Log.WithFields(logrus.Fields{
		"orders":      report.Orders,
		"submissions": report.Submissions,
		"applied":     report.Applied,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"duration":    time.Since(started),
	})
	if report.Orders+report.Submissions > 0 {
		entry.Info("Проход планировщика завершён")
	} else {
		entry.Debug("Проход планировщика завершён")
	}
	return report, nil
}
