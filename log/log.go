// Package log provides file-backed loggers for the application. Components
// must not write to stdout or stderr directly since that would corrupt the
// TUI; everything goes through these loggers instead.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

var logFileName = filepath.Join(os.TempDir(), "tabscope.log")

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger

	logFile *os.File
)

func init() {
	// Default to no-op loggers so packages can log before Initialize is
	// called (e.g. from tests) without nil checks at every call site.
	InfoLog = log.New(io.Discard, "", 0)
	WarningLog = log.New(io.Discard, "", 0)
	ErrorLog = log.New(io.Discard, "", 0)
}

// Initialize sets up file logging. Call once at startup, before the TUI takes
// over the terminal, and pair with a deferred Close.
func Initialize() {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		// Keep the no-op loggers; the app is still usable without a log file.
		fmt.Fprintf(os.Stderr, "could not open log file: %s\n", err)
		return
	}

	flags := log.Ldate | log.Ltime | log.Lshortfile
	InfoLog = log.New(f, "INFO:", flags)
	WarningLog = log.New(f, "WARNING:", flags)
	ErrorLog = log.New(f, "ERROR:", flags)
	logFile = f
}

// Close closes the log file and tells the user where it was written.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		fmt.Println("wrote logs to " + logFileName)
	}
}
