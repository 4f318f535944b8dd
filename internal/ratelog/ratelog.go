// Package ratelog throttles diagnostics so that a flood of identical
// failures can't drown the log.
package ratelog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MaxAttrs bounds the number of attributes a single record carries.
const MaxAttrs = 4

// Logger lets at most burst records per category through every interval.
// Records dropped in between are counted and reported with the next one
// that makes it through.
type Logger struct {
	logger *slog.Logger
	every  rate.Limit
	burst  int

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
}

func New(logger *slog.Logger, every time.Duration, burst int) *Logger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if burst < 1 {
		burst = 1
	}
	return &Logger{
		logger:     logger,
		every:      rate.Every(every),
		burst:      burst,
		limiters:   map[string]*rate.Limiter{},
		suppressed: map[string]int{},
	}
}

// allow reports whether a record of category may go out and how many were
// held back since the last one that did.
func (l *Logger) allow(category string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[category]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[category] = lim
	}

	if !lim.Allow() {
		l.suppressed[category]++
		return false, 0
	}

	n := l.suppressed[category]
	delete(l.suppressed, category)
	return true, n
}

// Enabled reports whether records at level would reach the handler at all.
func (l *Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger.Enabled(ctx, level)
}

// Log emits msg under category unless the category is being throttled.
// Only the first MaxAttrs attributes in args are kept.
func (l *Logger) Log(ctx context.Context, level slog.Level, category, msg string, args ...any) {
	if !l.Enabled(ctx, level) {
		return
	}

	ok, suppressed := l.allow(category)
	if !ok {
		return
	}

	attrs := make([]slog.Attr, 0, MaxAttrs+2)
	attrs = append(attrs, slog.String("category", category))
	for _, a := range argsToAttrs(args) {
		if len(attrs) > MaxAttrs {
			break
		}
		attrs = append(attrs, a)
	}
	if suppressed > 0 {
		attrs = append(attrs, slog.Int("suppressed", suppressed))
	}

	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (l *Logger) Debug(category, msg string, args ...any) {
	l.Log(context.Background(), slog.LevelDebug, category, msg, args...)
}

func (l *Logger) Warn(category, msg string, args ...any) {
	l.Log(context.Background(), slog.LevelWarn, category, msg, args...)
}

// argsToAttrs mirrors how slog pairs up loosely typed arguments.
func argsToAttrs(args []any) []slog.Attr {
	attrs := []slog.Attr{}
	for len(args) > 0 {
		switch x := args[0].(type) {
		case string:
			if len(args) == 1 {
				attrs = append(attrs, slog.String("!BADKEY", x))
				return attrs
			}
			attrs = append(attrs, slog.Any(x, args[1]))
			args = args[2:]
		case slog.Attr:
			attrs = append(attrs, x)
			args = args[1:]
		default:
			attrs = append(attrs, slog.Any("!BADKEY", x))
			args = args[1:]
		}
	}
	return attrs
}
