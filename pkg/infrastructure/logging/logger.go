package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"gitea.xscloud.ru/xscloud/reporter/pkg/application/logging"
)

const appNameKey = "app_name"

type Config struct {
	AppName string
	// Level is a logrus level name, "info" when empty.
	Level string
	// Output defaults to stderr.
	Output io.Writer
}

func NewJSONLogger(config *Config) (logging.MainLogger, error) {
	level := logrus.InfoLevel
	if config.Level != "" {
		var err error
		level, err = logrus.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	impl := logrus.New()
	impl.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	})
	impl.SetLevel(level)
	impl.SetOutput(output)
	impl.AddHook(NewStackTraceHook())
	return &loggerImpl{
		FieldLogger: impl.WithField(appNameKey, config.AppName),
	}, nil
}

// FromLogrus adapts an existing logrus logger, hooks and formatter are left as they are.
func FromLogrus(logger logrus.FieldLogger) logging.MainLogger {
	return &loggerImpl{FieldLogger: logger}
}

type loggerImpl struct {
	logrus.FieldLogger
}

func (l *loggerImpl) WithField(key string, value interface{}) logging.Logger {
	return &loggerImpl{l.FieldLogger.WithField(key, value)}
}

func (l *loggerImpl) WithFields(fields logging.Fields) logging.Logger {
	return &loggerImpl{l.FieldLogger.WithFields(logrus.Fields(fields))}
}

func (l *loggerImpl) Error(err error, args ...interface{}) {
	l.FieldLogger.WithError(err).Error(args...)
}

func (l *loggerImpl) Warning(err error, args ...interface{}) {
	l.FieldLogger.WithError(err).Warn(args...)
}

func (l *loggerImpl) FatalError(err error, args ...interface{}) {
	l.FieldLogger.WithError(err).Fatal(args...)
}

var fieldMap = logrus.FieldMap{
	logrus.FieldKeyTime: "@timestamp",
	logrus.FieldKeyMsg:  "message",
}
