// Package diag writes debugging snapshots of a session: the raw markup, a
// screenshot and a markdown rendering that is quick to read in a terminal.
// Capture never fails its caller; problems are logged and skipped.
package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/slotwatch/internal/surface"
)

// Recorder writes artifacts under Dir.
type Recorder struct {
	dir      string
	markdown bool
	conv     *converter.Converter
	logger   *slog.Logger
}

// New creates a Recorder. Markdown rendering is skipped when markdown is false.
func New(dir string, markdown bool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		dir:      dir,
		markdown: markdown,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// Dir is where artifacts are written.
func (r *Recorder) Dir() string { return r.dir }

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Capture snapshots sess as <name>.html, <name>.png and <name>.md. It
// returns the artifact base path, or "" when nothing could be written.
func (r *Recorder) Capture(_ context.Context, sess surface.Session, name string) (prefix string) {
	log := r.logger.With("artifact", name)
	defer func() {
		if p := recover(); p != nil {
			log.Warn("diag: capture panicked", "panic", fmt.Sprint(p))
			prefix = ""
		}
	}()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		log.Warn("diag: create dir", "error", err)
		return ""
	}
	prefix = filepath.Join(r.dir, unsafeName.ReplaceAllString(name, "_"))
	wrote := false

	markup, err := sess.Top().HTML()
	if err != nil {
		log.Warn("diag: read markup", "error", err)
	} else if err := os.WriteFile(prefix+".html", []byte(markup), 0o644); err != nil {
		log.Warn("diag: write markup", "error", err)
	} else {
		wrote = true
		if r.markdown {
			r.writeMarkdown(prefix, markup, log)
		}
	}

	png, err := sess.Screenshot()
	switch {
	case errors.Is(err, surface.ErrUnsupported):
	case err != nil:
		log.Warn("diag: screenshot", "error", err)
	default:
		if err := os.WriteFile(prefix+".png", png, 0o644); err != nil {
			log.Warn("diag: write screenshot", "error", err)
		} else {
			wrote = true
		}
	}

	if !wrote {
		return ""
	}
	log.Info("diag: captured", "path", prefix)
	return prefix
}

func (r *Recorder) writeMarkdown(prefix, markup string, log *slog.Logger) {
	md, err := r.conv.ConvertString(markup)
	if err != nil {
		log.Debug("diag: markdown", "error", err)
		return
	}
	if err := os.WriteFile(prefix+".md", []byte(md), 0o644); err != nil {
		log.Warn("diag: write markdown", "error", err)
	}
}
