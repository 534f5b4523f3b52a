package logconfig

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/arthurkiller/rollingwriter"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	timestampFmt = "2006-01-02T15:04:05.000"

	// FileName is the base name of the daily log file inside the log dir.
	FileName = "ip_changes"
)

type LogOptions struct {
	LogLevel zerolog.Level
	// Dir enables the daily-rotated file log when set.
	Dir string
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Bootstrap configures logger defaults (console).
func Bootstrap() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := makeLogger(consoleWriter(os.Stderr), zerolog.InfoLevel)
	setGlobalLogger(&logger)
}

// Configure adds the rolling file writer and applies the level. The returned
// closer flushes the file; it is a no-op when no file is configured.
func Configure(opts LogOptions) (io.Closer, error) {
	if opts.Dir == "" {
		logger := makeLogger(consoleWriter(os.Stderr), opts.LogLevel)
		setGlobalLogger(&logger)
		return io.NopCloser(nil), nil
	}

	fw, err := fileWriter(opts.Dir)
	if err != nil {
		return nil, err
	}
	logger := makeLogger(io.MultiWriter(consoleWriter(os.Stderr), plainWriter(fw)), opts.LogLevel)
	setGlobalLogger(&logger)
	log.Info().Msgf("Log file: %s", filepath.Join(opts.Dir, FileName+".log"))
	return fw, nil
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: timestampFmt,
	}
}

func plainWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: timestampFmt,
	}
}

func fileWriter(dir string) (rollingwriter.RollingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create log dir")
	}
	cfg := &rollingwriter.Config{
		TimeTagFormat:      "2006.01.02",
		LogPath:            dir,
		FileName:           FileName,
		RollingPolicy:      rollingwriter.TimeRolling,
		RollingTimePattern: "0 0 0 * * *",
		WriterMode:         "lock",
	}
	fw, err := rollingwriter.NewWriterFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure file logger")
	}
	return fw, nil
}

func makeLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func setGlobalLogger(logger *zerolog.Logger) {
	log.Logger = *logger
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
