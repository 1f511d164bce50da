// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging wires a logr.Logger facade over pterm for the CLI's
// human-readable status output, leveled by the PACKC_LOG environment
// variable.
package logging

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/pterm/pterm"
)

// EnvVerbosity is the environment variable that overrides the default log
// verbosity.
const EnvVerbosity = "PACKC_LOG"

// VerbosityFromEnv reads EnvVerbosity, defaulting to 0 (info level only).
// Values are interpreted like a stacked debug flag count:
// 0 shows info only; 1 and higher enable V(n) debug output up to n.
func VerbosityFromEnv() int {
	raw := os.Getenv(EnvVerbosity)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// NewLogger returns a logr.Logger that renders through pterm, at the given
// verbosity. V(1) and above are treated as debug output.
func NewLogger(verbosity int) logr.Logger {
	return logr.New(&ptermSink{verbosity: verbosity})
}

type ptermSink struct {
	verbosity int
	names     []string
	kv        []interface{}
}

func (s *ptermSink) Init(logr.RuntimeInfo) {}

func (s *ptermSink) Enabled(level int) bool {
	return level <= s.verbosity
}

func (s *ptermSink) Info(level int, msg string, keysAndValues ...interface{}) {
	line := s.render(msg, keysAndValues...)
	if level > 0 {
		pterm.Debug.Println(line)
		return
	}
	pterm.Info.Println(line)
}

func (s *ptermSink) Error(err error, msg string, keysAndValues ...interface{}) {
	line := s.render(msg, keysAndValues...)
	pterm.Error.Println(fmt.Sprintf("%s: %v", line, err))
}

func (s *ptermSink) render(msg string, keysAndValues ...interface{}) string {
	all := append(append([]interface{}{}, s.kv...), keysAndValues...)
	line := msg
	if len(s.names) > 0 {
		line = fmt.Sprintf("[%s] %s", joinNames(s.names), msg)
	}
	for i := 0; i+1 < len(all); i += 2 {
		line = fmt.Sprintf("%s %v=%v", line, all[i], all[i+1])
	}
	return line
}

func joinNames(names []string) string {
	out := names[0]
	for _, n := range names[1:] {
		out += "." + n
	}
	return out
}

func (s *ptermSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	clone := *s
	clone.kv = append(append([]interface{}{}, s.kv...), keysAndValues...)
	return &clone
}

func (s *ptermSink) WithName(name string) logr.LogSink {
	clone := *s
	clone.names = append(append([]string{}, s.names...), name)
	return &clone
}
