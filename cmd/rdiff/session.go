// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

// session holds what the global flags set up for one run.
type session struct {
	ctx      context.Context
	stop     context.CancelFunc
	log      zerolog.Logger
	profiler interface{ Stop() }
	started  time.Time
}

func (s *session) before(c *cli.Context) error {
	s.started = time.Now()
	s.ctx, s.stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s.log = newLogger(c.App.ErrWriter, c.GlobalBool("json-log"), c.GlobalBool("verbose"))

	dir := c.GlobalString("profile-dir")
	switch kind := c.GlobalString("profile"); kind {
	case "":
	case "cpu":
		s.profiler = profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook)
	case "mem":
		s.profiler = profile.Start(profile.MemProfile, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook)
	default:
		return errors.Errorf("unknown profile kind %q, want cpu or mem", kind)
	}
	return nil
}

func (s *session) after(c *cli.Context) error {
	if s.stop != nil {
		s.stop()
	}
	if s.profiler != nil {
		s.profiler.Stop()
		s.profiler = nil
		s.log.Debug().Str("dir", c.GlobalString("profile-dir")).Msg("profile written")
	}
	return nil
}

// newLogger logs to w, in color when w is a terminal, or as JSON lines.
func newLogger(w io.Writer, json, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if !json {
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		w = zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.Kitchen}
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("run_id", uuid.New().String()).
		Logger()
}
