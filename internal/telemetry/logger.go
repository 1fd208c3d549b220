package telemetry

import (
	"io"
	"os"
	"sort"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
)

// JSONLogger writes one JSON object per event. The terminal belongs to the
// UI, so events go to a file or nowhere.
type JSONLogger struct {
	mu  sync.Mutex
	w   io.WriteCloser
	log *clog.Logger
}

func NewJSONLogger(path string) (*JSONLogger, error) {
	var w io.WriteCloser = nopCloser{Writer: io.Discard}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
	}
	return newLogger(w, clog.DebugLevel), nil
}

// NewWriterLogger logs to w without taking ownership of it.
func NewWriterLogger(w io.Writer) *JSONLogger {
	return newLogger(nopCloser{Writer: w}, clog.DebugLevel)
}

func Discard() *JSONLogger {
	return newLogger(nopCloser{Writer: io.Discard}, clog.ErrorLevel)
}

func newLogger(w io.WriteCloser, level clog.Level) *JSONLogger {
	l := clog.NewWithOptions(w, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		Formatter:       clog.JSONFormatter,
		Level:           level,
	})
	return &JSONLogger{w: w, log: l}
}

func (l *JSONLogger) Debug(msg string, fields map[string]any) {
	l.emit(clog.DebugLevel, msg, fields)
}

func (l *JSONLogger) Info(msg string, fields map[string]any) {
	l.emit(clog.InfoLevel, msg, fields)
}

func (l *JSONLogger) Warn(msg string, fields map[string]any) {
	l.emit(clog.WarnLevel, msg, fields)
}

func (l *JSONLogger) Error(msg string, fields map[string]any) {
	l.emit(clog.ErrorLevel, msg, fields)
}

func (l *JSONLogger) emit(level clog.Level, msg string, fields map[string]any) {
	if l == nil || l.log == nil {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		v := fields[k]
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		kv = append(kv, k, v)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Log(level, msg, kv...)
}

func (l *JSONLogger) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	return l.w.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
