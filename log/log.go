// Package log is a levelled wrapper around the standard library logger.
package log

import (
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
)

// Level is a logging verbosity
type Level int

const (
	// Prefix is prepended to every line
	Prefix = "[gpiblab] "

	// HelpLevels lists the accepted level names
	HelpLevels = "Must be one of: error, warning, info, debug."
)

const (
	ErrorLevel Level = iota
	WarningLevel
	InfoLevel
	DebugLevel
)

var levelNames = map[string]Level{
	"error":   ErrorLevel,
	"warning": WarningLevel,
	"warn":    WarningLevel,
	"info":    InfoLevel,
	"debug":   DebugLevel,
}

type logger struct {
	level Level
	*stdlog.Logger
}

var std = &logger{
	level:  InfoLevel,
	Logger: stdlog.New(os.Stderr, Prefix, stdlog.LstdFlags),
}

// ParseLevel converts a level name into a Level
func ParseLevel(s string) (Level, error) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return InfoLevel, errors.New("unknown log level " + s + ". " + HelpLevels)
	}
	return lvl, nil
}

// SetLevel sets the verbosity from its name
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	std.level = lvl
	return nil
}

// CurrentLevel returns the active verbosity
func CurrentLevel() Level {
	return std.level
}

// Init redirects output and sets the level.  An empty level keeps the current one.
func Init(out io.Writer, level string) error {
	std.SetOutput(out)
	if level == "" {
		return nil
	}
	return SetLevel(level)
}

func emit(lvl Level, tag, format string, v ...interface{}) {
	if std.level >= lvl {
		std.Output(3, tag+fmt.Sprintf(format, v...))
	}
}

// Error logs at error level
func Error(format string, v ...interface{}) { emit(ErrorLevel, "[error] ", format, v...) }

// Warning logs at warning level
func Warning(format string, v ...interface{}) { emit(WarningLevel, "[warn] ", format, v...) }

// Info logs at info level
func Info(format string, v ...interface{}) { emit(InfoLevel, "[info] ", format, v...) }

// Debug logs at debug level
func Debug(format string, v ...interface{}) { emit(DebugLevel, "[debug] ", format, v...) }

// Fatal logs and exits, regardless of level
func Fatal(format string, v ...interface{}) {
	std.Output(2, "[fatal] "+fmt.Sprintf(format, v...))
	os.Exit(1)
}
