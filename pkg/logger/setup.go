package logger

import (
	"io"
	"os"
)

// SetupLogger builds the process logger from the runtime flags. Output goes to
// stderr so stdout stays free for command output.
func SetupLogger(level LogLevel, logJSON, logSource bool) Logger {
	return SetupLoggerWithOutput(level, logJSON, logSource, os.Stderr)
}

func SetupLoggerWithOutput(level LogLevel, logJSON, logSource bool, out io.Writer) Logger {
	return NewLogger(&Config{
		Level:      level,
		Output:     out,
		JSON:       logJSON,
		AddSource:  logSource,
		TimeFormat: "15:04:05",
	})
}
