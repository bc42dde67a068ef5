// Package state carries per-run environment of e2p commands through context.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"e2p/config"
)

type envKey struct{}

// LocalEnv is built by the CLI Before hook and torn down by After. Command
// actions fetch it with EnvFromContext and hand its pieces to the conversion
// runner, which owns the render stage and the job queue.
type LocalEnv struct {
	// loaded configuration, renderer and queue settings come from here
	Cfg *config.Config
	// debug report, nil unless --debug was requested; failed jobs leave
	// their intermediate HTML in it
	Rpt *config.Report
	Log *zap.Logger

	// PDFs go straight into destination, source sub-directories are not
	// recreated
	NoDirs bool
	// existing PDFs are replaced instead of skipping the book
	Overwrite bool
	// forced encoding for non UTF-8 entry names in EPUB containers
	CodePage encoding.Encoding

	start         time.Time
	restoreStdLog func()
}

// EnvFromContext returns environment installed by ContextWithEnv.
func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

// ContextWithEnv installs empty environment, run start time is recorded for
// the exit log.
func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &LocalEnv{start: time.Now()})
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// RedirectStdLog sends output of standard library log package to zap so
// third party code ends up in the same log.
func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
		e.restoreStdLog = nil
	}
}
