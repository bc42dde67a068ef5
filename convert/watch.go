package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"e2p/state"
)

// settleDelay is how long file must stay unchanged before it is considered
// completely written.
const settleDelay = 2 * time.Second

// Watch converts books appearing in directory until interrupted.
func Watch(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("watch")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no directory to watch has been specified")
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("unable to watch (%s): not a directory", dir)
	}

	dst := cmd.Args().Get(1)
	if len(dst) > 0 {
		if dst, err = filepath.Abs(dst); err != nil {
			return err
		}
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.NoDirs, env.Overwrite = true, cmd.Bool("overwrite")
	setCodePage(cmd.String("force-zip-cp"), env, log)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch (%s): %w", dir, err)
	}

	r := newRunner(ctx, env, log)
	defer func() {
		if e := r.close(); e != nil && err == nil {
			err = e
		}
	}()

	log.Info("Watching for new books", zap.String("dir", dir), zap.String("destination", dst))
	return watchLoop(ctx, watcher.Events, watcher.Errors, r, dst, log)
}

// watchLoop collects file events, submits files once they settle and
// handles queue events, all on one goroutine.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, r *runner, dst string, log *zap.Logger) error {
	var (
		// last change time of files which are still being written
		changing = make(map[string]time.Time)
		// files already submitted
		seen = make(map[string]bool)
	)

	tick := time.NewTicker(settleDelay / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !isSourceName(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				delete(changing, ev.Name)
				delete(seen, ev.Name)
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if !seen[ev.Name] {
					changing[ev.Name] = time.Now()
				}
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", zap.Error(err))

		case now := <-tick.C:
			for name, last := range changing {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(changing, name)
				if fi, err := os.Stat(name); err != nil || !fi.Mode().IsRegular() {
					continue
				}
				seen[name] = true
				if err := r.submit(source{path: name, rel: filepath.Base(name)}, dst); err != nil {
					return err
				}
			}

		case e := <-r.mb.Events():
			r.handle(e)
			if e.Status.Terminal() {
				r.tr.ClearFinished()
			}
		}
	}
}
