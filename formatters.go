package scopelog

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/dianlight/scopelog/callpath"
	"github.com/fatih/color"
	slogformatter "github.com/samber/slog-formatter"
	"gitlab.com/tozd/go/errors"
)

// maxStackFrames bounds the frames rendered for an error's stack trace.
const maxStackFrames = 20

// stackTraceFormatter renders frames as a single breadcrumb-style line,
// innermost first.
func stackTraceFormatter(frames *runtime.Frames) string {
	var stackLines []string

	for len(stackLines) < maxStackFrames {
		frame, more := frames.Next()
		stackLines = append(stackLines, fmt.Sprintf("%s:%s %s",
			color.GreenString(frame.File), color.BlueString("%d", frame.Line), color.HiWhiteString(frame.Function)))
		if !more {
			break
		}
	}

	return strings.Join(stackLines, callpath.Separator)
}

// ErrorFormatter transforms a go error into a readable error.
//
// Example:
//
//	err := reader.Close()
//	err = fmt.Errorf("could not close reader: %v", err)
//	logger.Error("close failed", "error", err)
//
// passed to ErrorFormatter("error"), will be rendered as:
//
//	error.message="could not close reader: file already closed" error.type=*errors.errorString
func ErrorFormatter(fieldName string) slogformatter.Formatter {
	return slogformatter.FormatByFieldType(fieldName, func(err error) slog.Value {
		return slog.GroupValue(
			slog.String("message", err.Error()),
			slog.String("type", reflect.TypeOf(err).String()),
			slog.Any("org_error", err),
		)
	})
}

// TozdErrorFormatter formats gitlab.com/tozd/go/errors with details, cause
// and a colored stacktrace.
func TozdErrorFormatter() slogformatter.Formatter {
	return slogformatter.FormatByType(func(v errors.E) slog.Value {
		var attrs []slog.Attr

		attrs = append(attrs, slog.String("message", v.Error()))

		if details := errors.Details(v); len(details) > 0 {
			var detailAttrs []any
			for k, val := range details {
				detailAttrs = append(detailAttrs, slog.Any(k, val))
			}
			attrs = append(attrs, slog.Group("details", detailAttrs...))
		}

		if stackTracer, ok := v.(interface{ StackTrace() []uintptr }); ok {
			if stackTrace := stackTracer.StackTrace(); len(stackTrace) > 0 {
				attrs = append(attrs, slog.String("stacktrace", stackTraceFormatter(runtime.CallersFrames(stackTrace))))
			}
		}

		// Add cause if available (for error chains)
		if cause := errors.Cause(v); cause != nil && cause != v {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}

		attrs = append(attrs, slog.Any("org_error", v))

		return slog.GroupValue(attrs...)
	})
}

// DurationFormatter renders time.Duration attributes in milliseconds with
// the same precision as the timer report.
func DurationFormatter() slogformatter.Formatter {
	return slogformatter.FormatByType(func(d time.Duration) slog.Value {
		return slog.StringValue(fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000))
	})
}
