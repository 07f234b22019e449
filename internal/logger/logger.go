// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы не блокировать основное приложение. Записи выводятся в JSON через zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const asyncBufferSize = 8192

type entry struct {
	level zerolog.Level
	msg   string
	fn    string
	dur   time.Duration
	// flushed закрывается воркером, когда до этой записи всё выведено.
	flushed chan struct{}
}

var (
	prefix string
	out    io.Writer = os.Stdout
	base   zerolog.Logger
	ch     chan entry
	once   sync.Once
	level  = zerolog.InfoLevel
)

// parseLevel переводит LOG_LEVEL в уровень zerolog.
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initWorker() {
	level = parseLevel(os.Getenv("LOG_LEVEL"))
	base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	ch = make(chan entry, asyncBufferSize)
	go func() {
		for e := range ch {
			if e.flushed != nil {
				close(e.flushed)
				continue
			}
			ev := base.WithLevel(e.level)
			if prefix != "" {
				ev = ev.Str("service", prefix)
			}
			if e.fn != "" {
				ev = ev.Str("fn", e.fn).Int64("duration_ms", e.dur.Milliseconds())
			}
			ev.Msg(e.msg)
		}
	}()
}

func enqueue(e entry) {
	once.Do(initWorker)
	if e.level < level {
		return
	}
	select {
	case ch <- e:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

// Flush ждёт, пока буфер будет выведен, но не дольше timeout. Вызывать перед os.Exit.
func Flush(timeout time.Duration) {
	once.Do(initWorker)
	done := make(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- entry{flushed: done}:
	case <-timer.C:
		return
	}
	select {
	case <-done:
	case <-timer.C:
	}
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "api", "worker").
func SetPrefix(p string) {
	prefix = p
}

// SetOutput меняет приёмник логов. Вызывать до первой записи.
func SetOutput(w io.Writer) {
	out = w
}

// Info пишет сообщение уровня info (асинхронно).
func Info(v ...any) {
	enqueue(entry{level: zerolog.InfoLevel, msg: fmt.Sprint(v...)})
}

// Infof форматирует и пишет сообщение уровня info (асинхронно).
func Infof(format string, v ...any) {
	enqueue(entry{level: zerolog.InfoLevel, msg: fmt.Sprintf(format, v...)})
}

// Debugf пишет отладочное сообщение (только при LOG_LEVEL=debug|trace).
func Debugf(format string, v ...any) {
	enqueue(entry{level: zerolog.DebugLevel, msg: fmt.Sprintf(format, v...)})
}

// Error пишет ошибку (асинхронно).
func Error(v ...any) {
	enqueue(entry{level: zerolog.ErrorLevel, msg: fmt.Sprint(v...)})
}

// Errorf форматирует ошибку (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(entry{level: zerolog.ErrorLevel, msg: fmt.Sprintf(format, v...)})
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	once.Do(initWorker)
	elapsed := time.Since(start)
	if level <= zerolog.DebugLevel {
		enqueue(entry{level: zerolog.DebugLevel, msg: "duration", fn: fn, dur: elapsed})
		return
	}
	if elapsed >= 100*time.Millisecond {
		enqueue(entry{level: zerolog.InfoLevel, msg: "slow call", fn: fn, dur: elapsed})
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
