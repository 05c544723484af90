package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger создает настроенный JSON-логгер сервиса
func NewLogger(serviceName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	logger.AddHook(&serviceHook{name: serviceName})
	return logger
}

func parseLevel(raw string) logrus.Level {
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// serviceHook добавляет имя сервиса в каждую запись лога
type serviceHook struct {
	name string
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.name
	return nil
}
