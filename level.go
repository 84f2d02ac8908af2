package scopelog

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gitlab.com/tozd/go/errors"
)

// Severity levels, expressed as slog levels so records interoperate with
// log/slog handlers.
const (
	LevelTrace     slog.Level = -8
	LevelDebug     slog.Level = slog.LevelDebug
	LevelInfo      slog.Level = slog.LevelInfo
	LevelNotice    slog.Level = 2
	LevelWarning   slog.Level = slog.LevelWarn
	LevelError     slog.Level = slog.LevelError
	LevelCritical  slog.Level = 10
	LevelAlert     slog.Level = 12
	LevelEmergency slog.Level = 16
)

// levelNames maps level strings to slog.Level values
var levelNames = map[string]slog.Level{
	"trace":     LevelTrace,
	"debug":     LevelDebug,
	"info":      LevelInfo,
	"notice":    LevelNotice,
	"warning":   LevelWarning,
	"warn":      LevelWarning, // alias for warning
	"error":     LevelError,
	"err":       LevelError,
	"critical":  LevelCritical,
	"crit":      LevelCritical,
	"alert":     LevelAlert,
	"emergency": LevelEmergency,
	"emerg":     LevelEmergency,
}

// reverseLevelNames maps slog.Level values to canonical string names
var reverseLevelNames = map[slog.Level]string{
	LevelTrace:     "TRACE",
	LevelDebug:     "DEBUG",
	LevelInfo:      "INFO",
	LevelNotice:    "NOTICE",
	LevelWarning:   "WARNING",
	LevelError:     "ERROR",
	LevelCritical:  "CRITICAL",
	LevelAlert:     "ALERT",
	LevelEmergency: "EMERGENCY",
}

var levelColors = map[slog.Level]color.Attribute{
	LevelTrace:     color.FgWhite,
	LevelDebug:     color.FgCyan,
	LevelInfo:      color.FgGreen,
	LevelNotice:    color.FgBlue,
	LevelWarning:   color.FgYellow,
	LevelError:     color.FgRed,
	LevelCritical:  color.FgHiRed,
	LevelAlert:     color.FgHiMagenta,
	LevelEmergency: color.FgHiRed,
}

// tint colour numbers (ANSI 256) for the console mirror handler
var levelColorNumbers = map[slog.Level]uint8{
	LevelTrace:     7,
	LevelDebug:     6,
	LevelInfo:      2,
	LevelNotice:    4,
	LevelWarning:   3,
	LevelError:     1,
	LevelCritical:  9,
	LevelAlert:     13,
	LevelEmergency: 9,
}

const labelWidth = len("EMERGENCY")

// LevelName returns the canonical name of level. Levels between the named
// ones fall back to slog's rendering.
func LevelName(level slog.Level) string {
	if name, ok := reverseLevelNames[level]; ok {
		return name
	}
	return level.String()
}

// levelLabel returns the name padded to a fixed width.
func levelLabel(level slog.Level) string {
	name := LevelName(level)
	if len(name) >= labelWidth {
		return name
	}
	return name + strings.Repeat(" ", labelWidth-len(name))
}

// ParseLevel converts a level name to a slog.Level.
// Supported levels: trace, debug, info, notice, warning/warn, error/err,
// critical/crit, alert, emergency/emerg. The comparison is case-insensitive.
func ParseLevel(levelStr string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(levelStr))
	if normalized == "" {
		return 0, errors.New("log level cannot be empty")
	}
	level, ok := levelNames[normalized]
	if !ok {
		return 0, errors.WithDetails(
			errors.Errorf("invalid log level '%s': supported levels are %s", levelStr, supportedLevels()),
			"value", levelStr,
		)
	}
	return level, nil
}

// supportedLevels returns a comma-separated list of level names.
func supportedLevels() string {
	names := make([]string, 0, len(levelNames))
	for name := range levelNames {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := levelNames[names[i]], levelNames[names[j]]
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	return strings.Join(names, ", ")
}
