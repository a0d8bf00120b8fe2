package logging

type Fields map[string]interface{}

type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger

	Info(...interface{})
	Warning(err error, args ...interface{})
	Error(err error, args ...interface{})
}

// MainLogger is held by the process entry point, only it may terminate the process.
type MainLogger interface {
	Logger
	FatalError(err error, args ...interface{})
}
