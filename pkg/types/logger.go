/*
Copyright © 2022 - 2024 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package types

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the installer-wide logging interface. Every component takes one
// rather than reaching for a package-level logger, so tests can inject a
// buffering implementation and the Orchestrator can fan a single sink out to
// both a log file and the streaming channel the TUI tails.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	SetLevel(level string)
	SetOutput(w io.Writer)
}

type logrusLogger struct {
	*logrus.Logger
}

// NewLogger builds a Logger backed by logrus, writing to w (typically the
// well-known log file tailed by the TUI).
func NewLogger(w io.Writer) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{Logger: l}
}

func (l *logrusLogger) SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.Logger.SetLevel(parsed)
}

func (l *logrusLogger) SetOutput(w io.Writer) {
	l.Logger.SetOutput(w)
}
