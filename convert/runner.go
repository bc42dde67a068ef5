package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"e2p/epub"
	"e2p/queue"
	"e2p/render"
	"e2p/state"
)

// source is an EPUB file to convert. rel is its path relative to the
// directory it was discovered in, used to recreate directory structure on
// output.
type source struct {
	path string
	rel  string
}

// runner feeds jobs to the queue and consumes queue events on the calling
// goroutine, which is the only owner of the tracker.
type runner struct {
	env   *state.LocalEnv
	log   *zap.Logger
	stage *render.Stage
	q     *queue.Queue
	mb    *queue.Mailbox
	tr    *queue.Tracker

	// destinations of unfinished jobs
	claimed   map[string]bool
	skipped   int
	completed int
	failed    int
}

func newRunner(ctx context.Context, env *state.LocalEnv, log *zap.Logger) *runner {
	stage := render.NewStage(render.NewChrome(&env.Cfg.Renderer, log), log)
	return newRunnerWith(ctx, env, log, stage)
}

func newRunnerWith(ctx context.Context, env *state.LocalEnv, log *zap.Logger, stage *render.Stage) *runner {
	pipeline := NewPipeline(stage, log, WithCodePage(env.CodePage), WithReport(env.Rpt))
	mb := queue.NewMailbox()
	q := queue.New(pipeline, mb, log, queue.WithPollInterval(env.Cfg.Queue.PollInterval))
	q.Start(ctx)

	return &runner{
		env:     env,
		log:     log,
		stage:   stage,
		q:       q,
		mb:      mb,
		tr:      queue.NewTracker(q),
		claimed: make(map[string]bool),
	}
}

// submit queues single source for conversion into dst directory.
func (r *runner) submit(src source, dst string) error {
	var md epub.Metadata
	if r.env.Cfg.Document.OutputNameTemplate != "" {
		var err error
		if md, err = epub.ReadMetadata(src.path, epub.WithCodePage(r.env.CodePage)); err != nil {
			// conversion will report the problem, naming falls back to defaults
			r.log.Debug("Unable to read book metadata", zap.String("file", src.path), zap.Error(err))
		}
	}
	out := buildOutputPath(md, src.path, src.rel, dst, r.env)

	if r.claimed[out] {
		r.skipped++
		r.log.Warn("Skipping source, destination is already used by another book", zap.String("file", src.path), zap.String("to", out))
		return nil
	}
	if _, err := os.Stat(out); err == nil {
		if !r.env.Overwrite {
			r.skipped++
			r.log.Warn("Skipping source, output file already exists", zap.String("file", src.path), zap.String("to", out))
			return nil
		}
		r.log.Warn("Overwriting existing file", zap.String("file", out))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("unable to check output file: %w", err)
	}

	id, err := r.q.Submit(src.path, out)
	if err != nil {
		return fmt.Errorf("unable to submit conversion: %w", err)
	}
	r.claimed[out] = true
	r.tr.Add(id, src.path, out)
	return nil
}

func (r *runner) handle(e queue.Event) {
	if err := r.tr.Apply(e); err != nil {
		r.log.Warn("Unexpected job event", zap.String("id", e.JobID), zap.Stringer("status", e.Status), zap.Error(err))
		return
	}
	j, _ := r.tr.Job(e.JobID)
	if e.Status.Terminal() {
		delete(r.claimed, j.Dst)
	}

	switch e.Status {
	case queue.StatusConverting:
		r.log.Debug(e.Message, zap.String("file", j.Src), zap.Float64("progress", e.Progress))
	case queue.StatusCompleted:
		r.completed++
		r.log.Info("Conversion completed", zap.String("from", j.Src), zap.String("to", j.Dst))
	case queue.StatusFailed:
		r.failed++
		r.log.Error("Conversion failed", zap.String("from", j.Src), zap.Error(e.Err))
	}
}

// wait consumes events until all submitted jobs are finished or ctx is done.
func (r *runner) wait(ctx context.Context) {
	for !r.tr.Idle() {
		select {
		case e := <-r.mb.Events():
			r.handle(e)
		case <-ctx.Done():
			return
		}
	}
}

// close stops the queue letting current conversion finish, delivers
// remaining events and releases browser.
func (r *runner) close() (err error) {
	sctx, cancel := context.WithTimeout(context.Background(), r.env.Cfg.Renderer.Timeout+30*time.Second)
	defer cancel()

	if e := r.q.Shutdown(sctx); e != nil {
		if errors.Is(e, context.DeadlineExceeded) {
			r.log.Warn("Current conversion abandoned, its output is undefined")
		} else {
			err = e
		}
	}
	r.mb.Close()
	for e := range r.mb.Events() {
		r.handle(e)
	}
	if e := r.stage.Close(); e != nil {
		r.log.Warn("Unable to stop browser", zap.Error(e))
	}

	s := r.tr.Summary()
	s.Completed, s.Failed = r.completed, r.failed
	fields := []zap.Field{zap.Int("skipped", r.skipped)}
	if n := s.Pending + s.Converting; n > 0 {
		fields = append(fields, zap.Int("abandoned", n))
	}
	r.log.Info(s.String(), fields...)
	return err
}
