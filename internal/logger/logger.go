package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log: глобальный логгер сервиса. До вызова Init пишет в stderr с уровнем info,
// поэтому пакеты можно использовать в тестах без явной инициализации.
var Log = logrus.New()

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// Silence отключает вывод, в тестах с большим количеством переходов.
func Silence() {
	Log.SetOutput(io.Discard)
}

// Subject возвращает запись лога с полями сделки.
func Subject(kind, id string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"subject_kind": kind,
		"subject_id":   id,
	})
}
