// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command rdiff computes signatures and deltas of files and patches basis
// files with them, using the librsync stream formats.
//
//	rdiff signature [OPTIONS] BASIS [SIGNATURE]
//	rdiff delta [OPTIONS] SIGNATURE NEWFILE [DELTA]
//	rdiff patch [OPTIONS] BASIS DELTA [NEWFILE]
//
// "-" reads from stdin or writes to stdout where a stream is allowed.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/c4milo/rdiff"
)

const version = "0.2.0"

func main() {
	app := setupApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rdiff: %v\n", err)
		os.Exit(1)
	}
}

func setupApp() *cli.App {
	s := new(session)

	app := cli.NewApp()
	app.Name = "rdiff"
	app.Version = version
	app.Usage = "compute and apply signature-based file differences"
	app.UsageText = "rdiff signature [OPTIONS] BASIS [SIGNATURE]\n" +
		"   rdiff delta [OPTIONS] SIGNATURE NEWFILE [DELTA]\n" +
		"   rdiff patch [OPTIONS] BASIS DELTA [NEWFILE]"
	app.EnableBashCompletion = true

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:   "verbose, v",
			EnvVar: "RDIFF_VERBOSE",
			Usage:  "log search and rebuild details",
		},
		cli.BoolFlag{
			Name:   "json-log",
			EnvVar: "RDIFF_JSON_LOG",
			Usage:  "log JSON lines instead of console output",
		},
		cli.StringFlag{
			Name:   "profile",
			EnvVar: "RDIFF_PROFILE",
			Usage:  "write a `KIND` profile, cpu or mem",
		},
		cli.StringFlag{
			Name:   "profile-dir",
			EnvVar: "RDIFF_PROFILE_DIR",
			Value:  ".",
			Usage:  "directory profiles are written to",
		},
	}
	app.Before = s.before
	app.After = s.after
	setupCommands(app, s)

	return app
}

func setupCommands(app *cli.App, s *session) {
	hashFlags := []cli.Flag{
		cli.StringFlag{
			Name:   "hash, H",
			EnvVar: "RDIFF_HASH",
			Value:  rdiff.DefaultStrongHash,
			Usage:  fmt.Sprintf("strong hash, one of %v", rdiff.StrongHashNames()),
		},
		cli.StringFlag{
			Name:   "seed",
			EnvVar: "RDIFF_SEED",
			Usage:  "hex encoded `SEED` appended to every strong hash input",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "signature",
			Aliases:   []string{"s"},
			Usage:     "write the signature of a basis file",
			ArgsUsage: "BASIS [SIGNATURE]",
			Flags: append([]cli.Flag{
				cli.UintFlag{
					Name:   "block-size, b",
					EnvVar: "RDIFF_BLOCK_SIZE",
					Value:  rdiff.DefaultBlockLength,
					Usage:  "signature block size in `BYTES`",
				},
				cli.UintFlag{
					Name:   "sum-size, S",
					EnvVar: "RDIFF_SUM_SIZE",
					Value:  rdiff.DefaultStrongSumLength,
					Usage:  "strong sum size in `BYTES`",
				},
			}, hashFlags...),
			Action: s.signature,
		},
		{
			Name:      "delta",
			Aliases:   []string{"d"},
			Usage:     "write the delta of a new file against a signature",
			ArgsUsage: "SIGNATURE NEWFILE [DELTA]",
			Flags: append([]cli.Flag{
				cli.UintFlag{
					Name:   "chunk-size",
					EnvVar: "RDIFF_CHUNK_SIZE",
					Value:  rdiff.DefaultChunkSize,
					Usage:  "size in `BYTES` of the pieces the new file is searched in",
				},
			}, hashFlags...),
			Action: s.delta,
		},
		{
			Name:      "patch",
			Aliases:   []string{"p"},
			Usage:     "apply a delta to a basis file",
			ArgsUsage: "BASIS DELTA [NEWFILE]",
			Action:    s.patch,
		},
	}
}
