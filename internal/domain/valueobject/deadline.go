package valueobject

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

const Day = 24 * time.Hour

// DeadlineAfter возвращает абсолютный дедлайн для события и длительности.
func DeadlineAfter(event time.Time, d time.Duration) time.Time {
	return event.Add(d)
}

// IsExpired сообщает, что дедлайн задан и уже прошёл.
// Истёкший дедлайн означает «ожидает автоматического действия», а не применённое изменение.
func IsExpired(deadline *time.Time, now time.Time) bool {
	return deadline != nil && now.After(*deadline)
}

// TimeRemaining: оставшееся до дедлайна время для отображения.
type TimeRemaining struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Expired bool `json:"expired"`
}

// RemainingUntil считает оставшееся время; после дедлайна возвращает нули и Expired.
// Граница та же, что у IsExpired: в сам момент дедлайна он ещё не истёк.
func RemainingUntil(deadline, now time.Time) TimeRemaining {
	if IsExpired(&deadline, now) {
		return TimeRemaining{Expired: true}
	}
	left := deadline.Sub(now)
	days := int(left / Day)
	left -= time.Duration(days) * Day
	hours := int(left / time.Hour)
	left -= time.Duration(hours) * time.Hour
	return TimeRemaining{
		Days:    days,
		Hours:   hours,
		Minutes: int(left / time.Minute),
	}
}

func (r TimeRemaining) String() string {
	if r.Expired {
		return "истёк"
	}
	return fmt.Sprintf("%dд %dч %dм", r.Days, r.Hours, r.Minutes)
}

// TimeoutFromUnit переводит пару «значение + единица» из настроек в длительность.
func TimeoutFromUnit(value int64, unit string) (time.Duration, error) {
	if value <= 0 {
		return 0, apperror.New(apperror.ErrCodeValidation, "таймаут должен быть положительным")
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "minute", "minutes":
		return time.Duration(value) * time.Minute, nil
	case "hour", "hours":
		return time.Duration(value) * time.Hour, nil
	case "day", "days", "":
		return time.Duration(value) * Day, nil
	}
	return 0, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестная единица таймаута %q", unit))
}
