package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New создает логгер клиента; каждая запись несет роль и пользователя сессии
func New(logLevel string, fields logrus.Fields) *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{})

	log.SetOutput(os.Stdout)

	// Уровень логирования
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel // Уровень по умолчанию, если передан некорректный
	}
	log.SetLevel(level)

	if len(fields) > 0 {
		log.AddHook(&defaultFieldsHook{fields: fields})
	}
	return log
}

// defaultFieldsHook добавляет постоянные поля, не перетирая явные
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}
