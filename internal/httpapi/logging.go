package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// loggingLineWriter logs complete NDJSON lines to the standard logger.
type loggingLineWriter struct {
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := indexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(lw.buf[:idx])
		if len(line) > 0 {
			if zlog != nil {
				zlog.Debug().Str("line", line).Msg("prompt stream")
			} else {
				log.Printf("prompt> %s", line)
			}
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("CHATD_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

func logPromptStart(path, session, rid string) {
	if zlog != nil {
		z := zlog.Info().Str("path", path).Str("session", session)
		if rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("prompt start")
		return
	}
	log.Printf("prompt start path=%s session=%s", path, session)
}

func logPromptEnd(status int, dur time.Duration, rid string, err error) {
	if zlog != nil {
		z := zlog.Info().Int("status", status).Dur("dur", dur)
		if rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("prompt end")
		return
	}
	log.Printf("prompt end status=%d dur=%s err=%v", status, dur, err)
}

func logEncodeFailure(err error) {
	if zlog != nil {
		zlog.Error().Err(err).Msg("response encode failed")
		return
	}
	log.Printf("response encode failed: %v", err)
}
