package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// New builds a tint logger writing to w. Colour is only used when w is a
// terminal. Verbose lowers the level from warn to debug.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		AddSource:  verbose,
		NoColor:    !isTerminal(w),
		TimeFormat: time.TimeOnly,
	})
	return slog.New(handler)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
