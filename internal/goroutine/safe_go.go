package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/ignatzorin/escrow-engine/internal/logger"
)

// Logger интерфейс для логирования ошибок
type Logger interface {
	Errorf(format string, args ...interface{})
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создает новый обработчик
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer rh.recover("Panic in goroutine")
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer rh.recover("Panic in goroutine (with context)")
		fn(ctx)
	}()
}

// Run выполняет fn в текущей горутине, превращая panic в запись лога.
// Нужен там, где горутиной управляет вызывающий (errgroup, тикер планировщика).
func (rh *RecoveryHandler) Run(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			rh.logger.Errorf("Panic recovered: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}()
	fn()
	return false
}

func (rh *RecoveryHandler) recover(prefix string) {
	if r := recover(); r != nil {
		rh.logger.Errorf("%s: %v\nStack trace:\n%s", prefix, r, debug.Stack())
	}
}

// logrusLogger направляет ошибки восстановления в общий логгер сервиса.
type logrusLogger struct{}

func (logrusLogger) Errorf(format string, args ...interface{}) {
	logger.Log.Errorf(format, args...)
}

// DefaultRecoveryHandler - глобальный обработчик, пишущий в logrus
var DefaultRecoveryHandler = NewRecoveryHandler(logrusLogger{})

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext - упрощенная функция для запуска безопасной горутины с контекстом
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}

// Run - выполнить fn с восстановлением после panic
func Run(fn func()) bool {
	return DefaultRecoveryHandler.Run(fn)
}
