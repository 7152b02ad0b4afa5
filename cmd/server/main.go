package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/escrow-engine/internal/auth"
	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/db"
	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/domain/repository"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	httpRouter "github.com/ignatzorin/escrow-engine/internal/http/router"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/mq"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/notify"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/persistence"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/redislock"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/handler"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/pkg/keylock"
	"github.com/ignatzorin/escrow-engine/internal/storage"
	"github.com/ignatzorin/escrow-engine/internal/usecase/dispute"
	"github.com/ignatzorin/escrow-engine/internal/usecase/escrow"
	"github.com/ignatzorin/escrow-engine/internal/usecase/order"
	"github.com/ignatzorin/escrow-engine/internal/usecase/submission"
	"github.com/ignatzorin/escrow-engine/internal/usecase/sweeper"
	"github.com/ignatzorin/escrow-engine/internal/ws"
)

const sweeperLeaseKey = "escrow:sweeper"

// repositories: хранилище, выбранное STORAGE_DRIVER.
type repositories struct {
	orders      repository.OrderRepository
	submissions repository.SubmissionRepository
	disputes    repository.DisputeRepository
	ledger      repository.LedgerRepository
	audit       repository.AuditRepository
	tx          repository.Transactor
}

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if cfg.Env == "development" {
		logger.SetTextFormatter()
	}

	var healthChecks []handler.HealthCheck

	// Хранилище.
	var repos repositories
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Log.Warn("Используется in-memory хранилище, данные не переживут перезапуск")
		store := memory.NewStore()
		repos = repositories{store.Orders, store.Submissions, store.Disputes, store.Ledger, store.Audit, store.Tx}
	default:
		dbConn, err := db.NewPostgres(ctx, db.Options{DSN: cfg.DatabaseURL})
		if err != nil {
			log.Fatalf("main: ошибка подключения к базе: %v", err)
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
			log.Fatalf("main: ошибка миграций: %v", err)
		}
		store := persistence.NewStore(dbConn)
		repos = repositories{store.Orders, store.Submissions, store.Disputes, store.Ledger, store.Audit, store.Tx}
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "database", Check: dbConn.PingContext})
	}

	// Уведомления: журнал, websocket и (если настроен) RabbitMQ.
	hub := ws.NewHub()
	go hub.Run(ctx)

	publishers := notify.Multi{notify.Log{}, notify.NewUsers(hub)}
	if cfg.RabbitMQURL != "" {
		publisher, err := mq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Fatalf("main: ошибка подключения к RabbitMQ: %v", err)
		}
		defer publisher.Close()
		publishers = append(publishers, publisher)
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:     "rabbitmq",
			Check:    func(context.Context) error { return publisher.Ping() },
			Optional: true,
		})
	}
	var events event.Publisher = notify.NewAsync(publishers, 5*time.Second)

	// Сервисы сделок. Блокировки общие: спор и сделка сериализуются на одном ключе.
	settings := cfg.Escrow
	locks := keylock.New()
	ledger := escrow.NewLedger(repos.ledger, time.Now)

	orderService := order.NewService(order.Deps{
		Orders:   repos.orders,
		Disputes: repos.disputes,
		Audit:    repos.audit,
		Ledger:   ledger,
		Tx:       repos.tx,
		Locks:    locks,
		Events:   events,
	}, order.Policy{
		OrderPolicy: entity.OrderPolicy{
			AcceptanceWindow: settings.AcceptanceWindow,
			ReviewPeriod:     settings.ReviewPeriod,
			MinReasonLength:  settings.MinReasonLength,
			MaxExtensionDays: settings.MaxExtensionDays,
		},
		Split:               settings.Split,
		AutomaticRefunds:    settings.AutomaticRefunds,
		AutoReleasePayment:  settings.AutoReleasePayment,
		DefaultDeliveryDays: settings.DefaultDeliveryDays,
	})

	submissionService := submission.NewService(submission.Deps{
		Submissions: repos.submissions,
		Disputes:    repos.disputes,
		Audit:       repos.audit,
		Ledger:      ledger,
		Tx:          repos.tx,
		Locks:       locks,
		Events:      events,
	}, submission.Policy{
		SubmissionPolicy: entity.SubmissionPolicy{
			ReviewPeriod:        settings.ReviewPeriod,
			MaxRevisionRequests: settings.MaxRevisionRequests,
			RevisionTimeout:     settings.RevisionTimeout,
			RejectionTimeout:    settings.RejectionTimeout,
			MinReasonLength:     settings.MinReasonLength,
		},
		Split:              settings.Split,
		AutomaticRefunds:   settings.AutomaticRefunds,
		AutoReleasePayment: settings.AutoReleasePayment,
	})

	disputeService := dispute.NewService(dispute.Deps{
		Disputes:    repos.disputes,
		Audit:       repos.audit,
		Tx:          repos.tx,
		Locks:       locks,
		Orders:      orderService,
		Submissions: submissionService,
	})

	// Планировщик дедлайнов. С Redis проход выполняет один экземпляр сервиса.
	var lease sweeper.Lease
	if cfg.RedisAddr != "" {
		client, err := redislock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("main: ошибка подключения к Redis: %v", err)
		}
		defer safeCloseRedis(client)
		lease = redislock.NewLease(client, sweeperLeaseKey)
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Optional: true,
		})
	}

	sweep := sweeper.New(sweeper.Config{
		Interval:    settings.SweepInterval,
		Concurrency: settings.SweepConcurrency,
	}, lease, time.Now,
		sweeper.Source{Kind: valueobject.SubjectKindOrder, Due: repos.orders, Applier: orderService},
		sweeper.Source{Kind: valueobject.SubjectKindJob, Due: repos.submissions, Applier: submissionService},
	)
	sweep.Start(ctx)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: ошибка инициализации хранилища доказательств: %v", err)
	}

	// Роутер.
	tokens := auth.NewTokenManager(cfg.JWTSecret)
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Health:      handler.NewHealthHandler(healthChecks...),
		WS:          handler.NewWSHandler(hub, cfg.AllowedOrigins),
		Orders:      handler.NewOrderHandler(orderService, disputeService, ledger),
		Submissions: handler.NewSubmissionHandler(submissionService, disputeService, ledger),
		Disputes:    handler.NewDisputeHandler(disputeService, evidenceStorage),
		Admin:       handler.NewAdminHandler(sweep),
	}, tokens)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("Ошибка остановки HTTP сервера")
		}
	}()

	logger.Log.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
	logger.Log.Info("Сервер остановлен")
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("Ошибка закрытия базы")
	}
}

func safeCloseRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Log.WithError(err).Error("Ошибка закрытия Redis")
	}
}
