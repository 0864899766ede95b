package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// Format represents the output format for logs
type Format int

const (
	// FormatJSON outputs logs in JSON format
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format
	FormatText
)

// String returns the string representation of the format
func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

// ParseFormat parses a string into a Format. Unknown values fall back to JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "console":
		return FormatText
	default:
		return FormatJSON
	}
}

// Output represents where logs should be written
type Output struct {
	writer io.Writer
	closer io.Closer
}

// Writer returns the underlying io.Writer
func (o Output) Writer() io.Writer {
	if o.writer == nil {
		return os.Stderr
	}
	return o.writer
}

// Close releases the output if it owns a file handle.
func (o Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// NewOutput creates an Output from an io.Writer
func NewOutput(w io.Writer) Output {
	return Output{writer: w}
}

// OutputStdout creates an Output that writes to stdout
func OutputStdout() Output {
	return Output{writer: os.Stdout}
}

// OutputStderr creates an Output that writes to stderr.
// The CLI logs here so stdout stays clean for command output.
func OutputStderr() Output {
	return Output{writer: os.Stderr}
}

// OutputDiscard drops every record.
func OutputDiscard() Output {
	return Output{writer: io.Discard}
}

// OutputRotatingFile writes to dir/coffeeclub.<date>.log, rotating daily and
// keeping maxAge worth of files. A coffeeclub.log symlink points at the
// current file.
func OutputRotatingFile(dir string, maxAge time.Duration) (Output, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Output{}, fmt.Errorf("create log directory: %w", err)
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	rl, err := rotatelogs.New(
		filepath.Join(dir, "coffeeclub.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "coffeeclub.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return Output{}, fmt.Errorf("open rotating log: %w", err)
	}
	return Output{writer: rl, closer: rl}, nil
}

// Config holds configuration for the logger
type Config struct {
	// Level is the minimum log level to output
	Level Level

	// Format is the output format (JSON or Text)
	Format Format

	// Output is where logs should be written
	Output Output

	// AddSource includes source file and line number in logs
	AddSource bool

	// ServiceName is attached to every record as "service" when set
	ServiceName string

	// ServiceVersion is attached to every record as "version" when set
	ServiceVersion string
}

// DefaultConfig logs warnings and above as text to stderr, which keeps
// interactive commands quiet.
func DefaultConfig() Config {
	return Config{
		Level:          LevelWarn,
		Format:         FormatText,
		Output:         OutputStderr(),
		ServiceName:    "coffeeclub",
		ServiceVersion: "dev",
	}
}

// DevelopmentConfig logs at DEBUG level in text format with source location
func DevelopmentConfig() Config {
	return Config{
		Level:          LevelDebug,
		Format:         FormatText,
		Output:         OutputStderr(),
		AddSource:      true,
		ServiceName:    "coffeeclub",
		ServiceVersion: "dev",
	}
}

// ProductionConfig logs at INFO level in JSON format
func ProductionConfig() Config {
	return Config{
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         OutputStderr(),
		ServiceName:    "coffeeclub",
		ServiceVersion: "unknown",
	}
}
