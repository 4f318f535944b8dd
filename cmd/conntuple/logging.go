package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scitags/conntuple/types"
)

const (
	TupleKey   string = "tuple"
	SkKey      string = "sk"
	PidTgidKey string = "pidTgid"
)

func logReplacements(groups []string, a slog.Attr) slog.Attr {
	// Remove time.
	if a.Key == slog.TimeKey && len(groups) == 0 && !logTimeFlag {
		return slog.Attr{}
	}

	// Remove the directory from the source's filename.
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		source.File = filepath.Base(source.File)
	}

	// slog would call it DEBUG-1 otherwise.
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if level, ok := a.Value.Any().(slog.Level); ok && level == types.LevelTrace {
			return slog.String(a.Key, "TRACE")
		}
	}

	// Kernel pointers only make sense in hex.
	if a.Key == SkKey || a.Key == PidTgidKey {
		if v, ok := a.Value.Any().(uint64); ok {
			return slog.String(a.Key, fmt.Sprintf("%#x", v))
		}
	}

	// Format tuples as src -> dst plus the metadata
	if a.Key == TupleKey {
		if t, ok := a.Value.Any().(types.ConnTuple); ok {
			return slog.String(a.Key, t.String())
		}
	}

	return a
}

func setupLogging() error {
	level, ok := types.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", logLevel)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   level <= types.LevelDebug,
		Level:       level,
		ReplaceAttr: logReplacements,
	}))
	slog.SetDefault(logger)

	return nil
}
