package observe

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures [NewLogger].
type LogOptions struct {
	// Level is the minimum level emitted.
	Level slog.Leveler

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// File, when set, receives a copy of every record. The file is rotated
	// once it reaches MaxSizeMB megabytes.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds the process logger writing to w and, optionally, to a
// rotated log file. The returned close function flushes and closes the file;
// it is a no-op when no file is configured.
func NewLogger(w io.Writer, opts LogOptions) (*slog.Logger, func() error) {
	closeFn := func() error { return nil }
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			LocalTime:  true,
			Compress:   true,
		}
		w = io.MultiWriter(w, file)
		closeFn = file.Close
	}

	hopts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h), closeFn
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
