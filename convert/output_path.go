package convert

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"e2p/config"
	"e2p/epub"
	"e2p/state"
)

const outputExt = ".pdf"

// buildOutputPath returns constructed output file path/name based on various
// input parameters. "src" is full path to the source file, "rel" is its path
// relative to the directory it was found in (just base name when file was
// given directly) and "dst" is destination directory, when empty output is
// placed next to the source. It uses either default naming scheme or
// user-defined template and takes into account whether to preserve source
// directory structure on the output. It cleans up path and if requested
// transliterates it.
func buildOutputPath(md epub.Metadata, src, rel, dst string, env *state.LocalEnv) string {
	outDir := determineOutputDir(src, rel, dst, env)
	defaultFile := buildDefaultFileName(rel, env)

	if env.Cfg.Document.OutputNameTemplate == "" {
		return filepath.Join(outDir, defaultFile)
	}

	expandedName := expandOutputNameTemplate(md, rel, env)
	if expandedName == "" {
		// fallback to default name if template expansion failed
		return filepath.Join(outDir, defaultFile)
	}

	return assemblePathWithSubdirs(outDir, expandedName, env)
}

func determineOutputDir(src, rel, dst string, env *state.LocalEnv) string {
	if dst == "" {
		return filepath.Dir(src)
	}
	if env.NoDirs {
		return dst
	}
	return filepath.Join(dst, filepath.Dir(rel))
}

func buildDefaultFileName(src string, env *state.LocalEnv) string {
	baseName := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return cleanPathSegment(baseName, env) + outputExt
}

func expandOutputNameTemplate(md epub.Metadata, src string, env *state.LocalEnv) string {
	expandedName, err := expandTemplate(md, config.OutputNameTemplateFieldName, env.Cfg.Document.OutputNameTemplate, src)
	if err != nil {
		env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		return ""
	}
	return filepath.FromSlash(strings.TrimSpace(expandedName))
}

// assemblePathWithSubdirs takes an expanded template name (which may contain
// path separators for subdirectories) and assembles it into a full output path,
// cleaning and transliterating segments as needed
func assemblePathWithSubdirs(outDir, expandedName string, env *state.LocalEnv) string {
	pathSegments := splitAndCleanPath(expandedName)

	if len(pathSegments) == 0 {
		return outDir
	}

	fileName := cleanPathSegment(pathSegments[len(pathSegments)-1], env) + outputExt
	dirParts := make([]string, 0, len(pathSegments)+1)
	dirParts = append(dirParts, outDir)

	for _, segment := range pathSegments[:len(pathSegments)-1] {
		dirParts = append(dirParts, cleanPathSegment(segment, env))
	}

	dirParts = append(dirParts, fileName)
	return filepath.Join(dirParts...)
}

func splitAndCleanPath(path string) []string {
	path = strings.TrimSuffix(path, string(os.PathSeparator))
	segments := make([]string, 0, 8)

	for head, tail := filepath.Split(path); tail != ""; head, tail = filepath.Split(head) {
		segments = slices.Insert(segments, 0, tail)
		head = strings.TrimSuffix(head, string(os.PathSeparator))
		if head == "" {
			break
		}
	}

	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Document.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
