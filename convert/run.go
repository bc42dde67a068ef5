package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"e2p/state"
)

const sourceExt = ".epub"

func isSourceName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), sourceExt)
}

// Run converts every source given on command line, waits for all
// conversions to finish and reports summary.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return errors.New("no input source has been specified")
	}

	// last argument is destination directory unless it looks like a book
	var dst string
	if len(args) > 1 && !isSourceName(args[len(args)-1]) {
		if dst, err = filepath.Abs(args[len(args)-1]); err != nil {
			return err
		}
		args = args[:len(args)-1]
		if fi, err := os.Stat(dst); err == nil && !fi.IsDir() {
			return fmt.Errorf("destination is not a directory (%s)", dst)
		}
	}

	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")
	setCodePage(cmd.String("force-zip-cp"), env, log)

	sources, err := collectSources(ctx, args, log)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Warn("Nothing to process")
		return nil
	}

	log.Info("Processing starting", zap.Int("sources", len(sources)), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	r := newRunner(ctx, env, log)
	defer func() {
		if e := r.close(); e != nil && err == nil {
			err = e
		}
	}()

	for _, src := range sources {
		if err := r.submit(src, dst); err != nil {
			return err
		}
	}
	r.wait(ctx)
	return nil
}

// setCodePage handles archaic code pages for entry names. Since zip "standard"
// does not define file name encoding we may need to force one for old books.
func setCodePage(cp string, env *state.LocalEnv, log *zap.Logger) {
	if len(cp) == 0 {
		return
	}
	enc, err := ianaindex.IANA.Encoding(cp)
	if err != nil || enc == nil {
		log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		return
	}
	env.CodePage = enc
	n, _ := ianaindex.IANA.Name(enc)
	log.Debug("Forcefully converting all non UTF-8 file names in containers", zap.String("charset", n))
}

// collectSources expands command line arguments into list of books. Missing
// paths are skipped, directories are searched recursively and their books
// are taken in natural order.
func collectSources(ctx context.Context, args []string, log *zap.Logger) ([]source, error) {
	var sources []source
	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		fi, err := os.Stat(path)
		if err != nil {
			log.Warn("Skipping source", zap.String("path", path), zap.Error(err))
			continue
		}

		switch {
		case fi.IsDir():
			found, err := findBooks(ctx, path, log)
			if err != nil {
				return nil, fmt.Errorf("unable to process directory: %w", err)
			}
			if len(found) == 0 {
				log.Debug("Nothing to process", zap.String("dir", path))
			}
			sources = append(sources, found...)
		case fi.Mode().IsRegular():
			if !isSourceName(path) {
				log.Debug("Processing file without epub extension", zap.String("file", path))
			}
			sources = append(sources, source{path: path, rel: filepath.Base(path)})
		default:
			log.Warn("Skipping source, unexpected path mode", zap.String("path", path))
		}
	}
	return sources, nil
}

func findBooks(ctx context.Context, dir string, log *zap.Logger) ([]source, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() || !isSourceName(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Sort(natural.StringSlice(rels))
	sources := make([]source, 0, len(rels))
	for _, rel := range rels {
		sources = append(sources, source{path: filepath.Join(dir, rel), rel: rel})
	}
	return sources, nil
}
