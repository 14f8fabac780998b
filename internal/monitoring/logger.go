// Package monitoring holds the swappable logger used by the infrastructure
// packages (db, ingest, ws, serialmux, api).
package monitoring

import (
	"bytes"
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Writer returns an io.Writer that logs each line written to it through Logf
// with prefix. It lets stdlib components that take a *log.Logger or an
// io.Writer share the swappable logger.
func Writer(prefix string) io.Writer {
	return lineWriter{prefix: prefix}
}

type lineWriter struct {
	prefix string
}

func (w lineWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte{'\n'}) {
		if len(line) > 0 {
			Logf("%s%s", w.prefix, line)
		}
	}
	return len(p), nil
}
