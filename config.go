package scopelog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Decoration selects the prefixes added in front of every message.
type Decoration uint32

const (
	ShowLevel Decoration = 1 << iota
	ShowTime
	ShowThread
	ShowPath

	ShowAll = ShowLevel | ShowTime | ShowThread | ShowPath
)

var decorationNames = map[string]Decoration{
	"level":  ShowLevel,
	"time":   ShowTime,
	"thread": ShowThread,
	"path":   ShowPath,
	"all":    ShowAll,
}

// DefaultMaxLineLength bounds a formatted line, newline included.
const DefaultMaxLineLength = 2048

// Config is fixed when a Logger is built; nothing in it changes afterwards.
type Config struct {
	// MinLevel is the lowest severity that is emitted.
	MinLevel slog.Level
	// Decorations selects the line prefixes.
	Decorations Decoration
	// ExitLevels lists severities that terminate the process after the line
	// has been written.
	ExitLevels []slog.Level
	// ExitCode is the status used for ExitLevels.
	ExitCode int

	Scope            bool // scope tracing
	Memory           bool // allocation tracking
	MemoryDumpOnExit bool // dump live allocations on Close
	Timer            bool // region timing
	CrashHook        bool // dump diagnostics on SIGINT/SIGTERM/SIGQUIT/SIGABRT

	Color             bool // colour level labels when stdout is a terminal
	HideSensitiveData bool // mask secrets in messages and slog attributes
	MaxLineLength     int
}

// DefaultConfig returns the configuration used by New without options.
func DefaultConfig() Config {
	return Config{
		MinLevel:      LevelInfo,
		Decorations:   ShowLevel | ShowTime | ShowPath,
		ExitCode:      1,
		Scope:         true,
		Memory:        true,
		Timer:         true,
		MaxLineLength: DefaultMaxLineLength,
	}
}

// fileConfig mirrors Config in YAML. Pointers distinguish "absent" from
// "false" so a file only overrides what it mentions.
type fileConfig struct {
	MinLevel          string   `yaml:"min_level"`
	Decorations       []string `yaml:"decorations"`
	ExitLevels        []string `yaml:"exit_levels"`
	ExitCode          *int     `yaml:"exit_code"`
	Scope             *bool    `yaml:"scope"`
	Memory            *bool    `yaml:"memory"`
	MemoryDumpOnExit  *bool    `yaml:"memory_dump_on_exit"`
	Timer             *bool    `yaml:"timer"`
	CrashHook         *bool    `yaml:"crash_hook"`
	Color             *bool    `yaml:"color"`
	HideSensitiveData *bool    `yaml:"hide_sensitive_data"`
	MaxLineLength     *int     `yaml:"max_line_length"`
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WithDetails(errors.Wrap(err, "failed to read config file"), "path", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.WithDetails(err, "path", path)
	}
	return cfg, nil
}

// ParseConfig decodes YAML on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse YAML")
	}
	return fc.toConfig()
}

func (fc fileConfig) toConfig() (Config, error) {
	cfg := DefaultConfig()

	if fc.MinLevel != "" {
		level, err := ParseLevel(fc.MinLevel)
		if err != nil {
			return cfg, err
		}
		cfg.MinLevel = level
	}
	if fc.Decorations != nil {
		d, err := ParseDecorations(fc.Decorations)
		if err != nil {
			return cfg, err
		}
		cfg.Decorations = d
	}
	for _, name := range fc.ExitLevels {
		level, err := ParseLevel(name)
		if err != nil {
			return cfg, err
		}
		cfg.ExitLevels = append(cfg.ExitLevels, level)
	}
	if fc.ExitCode != nil {
		cfg.ExitCode = *fc.ExitCode
	}
	setBool(&cfg.Scope, fc.Scope)
	setBool(&cfg.Memory, fc.Memory)
	setBool(&cfg.MemoryDumpOnExit, fc.MemoryDumpOnExit)
	setBool(&cfg.Timer, fc.Timer)
	setBool(&cfg.CrashHook, fc.CrashHook)
	setBool(&cfg.Color, fc.Color)
	setBool(&cfg.HideSensitiveData, fc.HideSensitiveData)
	if fc.MaxLineLength != nil {
		if *fc.MaxLineLength < 2 {
			return cfg, errors.WithDetails(errors.New("max_line_length must be at least 2"), "value", *fc.MaxLineLength)
		}
		cfg.MaxLineLength = *fc.MaxLineLength
	}
	return cfg, nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// ParseDecorations converts names such as "level" or "path" to a Decoration
// set. An empty list yields no decorations.
func ParseDecorations(names []string) (Decoration, error) {
	var d Decoration
	for _, name := range names {
		flag, ok := decorationNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, errors.WithDetails(errors.Errorf("invalid decoration '%s'", name), "value", name)
		}
		d |= flag
	}
	return d, nil
}

// Option configures a Logger.
type Option func(*Logger)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(l *Logger) { l.cfg = cfg }
}

// WithLevel sets the minimum severity.
func WithLevel(level slog.Level) Option {
	return func(l *Logger) { l.cfg.MinLevel = level }
}

// WithDecorations sets the line prefixes.
func WithDecorations(d Decoration) Option {
	return func(l *Logger) { l.cfg.Decorations = d }
}

// WithExitLevels makes the given severities terminate the process after
// emission.
func WithExitLevels(levels ...slog.Level) Option {
	return func(l *Logger) { l.cfg.ExitLevels = append([]slog.Level(nil), levels...) }
}

// WithSink routes output to sink, which receives user with every line.
func WithSink(sink Sink, user any) Option {
	return func(l *Logger) { l.out = NewOutput(sink, user) }
}

// WithWriter routes output to w.
func WithWriter(w io.Writer) Option {
	return func(l *Logger) { l.out = NewOutput(WriterSink(w), nil) }
}

// WithClock replaces the system monotonic clock.
func WithClock(c Clock) Option {
	return func(l *Logger) { l.clock = c }
}

// WithExitFunc replaces os.Exit for every termination path: exit levels,
// allocation misuse and the crash hook.
func WithExitFunc(exit func(int)) Option {
	return func(l *Logger) { l.exit = exit }
}
