package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/domain/event"
	"github.com/ignatzorin/escrow-engine/internal/goroutine"
	"github.com/ignatzorin/escrow-engine/internal/logger"
)

// Multi рассылает события всем издателям; ошибки объединяются.
type Multi []event.Publisher

func (m Multi) Publish(ctx context.Context, events ...event.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async публикует события в отдельной горутине с таймаутом, чтобы медленный
// брокер не задерживал ответ на команду.
type Async struct {
	next    event.Publisher
	timeout time.Duration
}

func NewAsync(next event.Publisher, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{next: next, timeout: timeout}
}

func (a *Async) Publish(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := append([]event.Event(nil), events...)
	goroutine.SafeGoWithContext(context.WithoutCancel(ctx), func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.next.Publish(ctx, batch...); err != nil {
			logger.Log.WithError(err).WithField("events", len(batch)).Warn("Не удалось доставить события")
		}
	})
	return nil
}

// Log пишет каждое событие в журнал сервиса.
type Log struct{}

func (Log) Publish(_ context.Context, events ...event.Event) error {
	for _, e := range events {
		entry := logger.Subject(string(e.SubjectKind), e.SubjectID.String()).WithFields(logrus.Fields{
			"event":    e.Type,
			"actor_id": e.ActorID,
		})
		if e.NewStatus != "" {
			entry = entry.WithFields(logrus.Fields{"from": e.OldStatus, "to": e.NewStatus})
		}
		entry.Debug("Событие сделки")
	}
	return nil
}

// Broadcaster: получатель персональных уведомлений (WebSocket-хаб).
type Broadcaster interface {
	BroadcastToUser(ctx context.Context, userID uuid.UUID, event string, data any) error
}

// Users отправляет событие каждому получателю из Event.Recipients.
type Users struct {
	sink Broadcaster
}

func NewUsers(sink Broadcaster) *Users {
	return &Users{sink: sink}
}

func (u *Users) Publish(ctx context.Context, events ...event.Event) error {
	var errs []error
	for _, e := range events {
		for _, userID := range e.Recipients {
			if userID == uuid.Nil {
				continue
			}
			if err := u.sink.BroadcastToUser(ctx, userID, string(e.Type), e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
