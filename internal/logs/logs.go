// Package logs configures the process-wide go-logging backend.
package logs

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

const format = `%{time:2006-01-02 15:04:05} %{level:.5s} %{module:-9s} %{message}`

// Init receives the log level to be set in go-logging as a string and
// installs a leveled stdout backend. An invalid level is returned as an
// error and leaves the backend untouched.
func Init(level string) error {
	return InitWriter(os.Stdout, level)
}

// InitWriter is Init with a custom destination.
func InitWriter(w io.Writer, level string) error {
	levelCode, err := logging.LogLevel(level)
	if err != nil {
		return err
	}

	baseBackend := logging.NewLogBackend(w, "", 0)
	backendFormatter := logging.NewBackendFormatter(baseBackend, logging.MustStringFormatter(format))
	backendLeveled := logging.AddModuleLevel(backendFormatter)
	backendLeveled.SetLevel(levelCode, "")

	logging.SetBackend(backendLeveled)
	return nil
}
