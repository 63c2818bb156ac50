package logging

import (
	"io"

	log "github.com/sirupsen/logrus"
)

//Logger interface that allows abstracting away the concrete logger implementation we are using
type Logger interface {
	//Fatal causes the application to terminate with the given error message
	Fatal(args ...interface{})
	//Fatalf causes the application to terminate with the given error message
	Fatalf(format string, args ...interface{})
	//Error logs a message at ERROR level
	Error(args ...interface{})
	//Errorf logs a message at ERROR level
	Errorf(format string, args ...interface{})
	//Warnf logs a message at WARN level
	Warnf(format string, args ...interface{})
	//Infof logs a message at INFO level
	Infof(format string, args ...interface{})
	//Debugf logs a message at DEBUG level
	Debugf(format string, args ...interface{})
	//WithField returns a logger that adds the key/value pair to every entry
	WithField(key string, value interface{}) Logger
}

//NewLogger instantiates a new JSON logger at the given level ("debug", "info", "warn", ...).
//Unknown levels fall back to info.
func NewLogger(level string) Logger {
	impl := log.New()
	impl.SetFormatter(&log.JSONFormatter{})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	impl.SetLevel(lvl)

	return &logger{entry: log.NewEntry(impl)}
}

//NewNopLogger returns a logger that discards everything. Intended for tests.
func NewNopLogger() Logger {
	impl := log.New()
	impl.SetOutput(io.Discard)
	return &logger{entry: log.NewEntry(impl)}
}

type logger struct {
	entry *log.Entry
}

func (l *logger) Error(args ...interface{}) {
	l.entry.Error(args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logger) Fatal(args ...interface{}) {
	l.entry.Fatal(args...)
}

func (l *logger) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logger) WithField(key string, value interface{}) Logger {
	return &logger{entry: l.entry.WithField(key, value)}
}
