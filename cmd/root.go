// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version is set with -ldflags at build time.
	Version string
	// BuildTime is set with -ldflags at build time.
	BuildTime string
)

func versionLine() string {
	v, b := Version, BuildTime
	if v == "" {
		v = "v0.0.0"
	}
	if b == "" {
		b = "not recorded"
	}
	return "Version: " + v + "\nBuild Time: " + b + "\n"
}

// Shared holds the options every subcommand reads from the root command's
// persistent flags.
type Shared struct {
	BaseDir string
	DAGFile string
	Verbose bool
}

var shared = &Shared{BaseDir: "."}

func (s *Shared) register(flags *pflag.FlagSet) {
	flags.StringVar(&s.BaseDir, "base-dir", s.BaseDir, "Directory holding steps/, data/, snapshots/ and dag/.")
	flags.StringVar(&s.DAGFile, "dag-file", s.DAGFile, "DAG file. Defaults to dag/main.yml under the base dir.")
	flags.BoolVar(&s.Verbose, "verbose", s.Verbose, "Enable debug logging.")
}

var subcommandFns = map[string]func(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command{}

// NewRootCommand builds the etl command with every registered subcommand
// attached. Flag values not given on the command line are taken from ETL_*
// environment variables and then from the --config file.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	*shared = Shared{BaseDir: "."}
	rc := &cobra.Command{
		Use:   "etl",
		Short: "etl - build the datasets of a step DAG",
		Long: `Runs snapshot, meadow, garden and grapher steps in dependency
order, resolves step names and dependencies, and serves the
catalog of built datasets.

` + versionLine(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setAllConfig(viper.New(), cmd.Flags(), "ETL")
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "TOML configuration file to read flag values from.")
	shared.register(rc.PersistentFlags())
	for _, fn := range subcommandFns {
		rc.AddCommand(fn(stdin, stdout, stderr))
	}
	rc.SetOutput(stderr)
	return rc
}

// setAllConfig resolves every flag in flags. A flag given on the command line
// wins, then the environment variable named by envPrefix, an underscore and
// the upper-cased flag name with dashes as underscores, then the TOML file
// named by the config flag, then the flag's default.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return errors.Wrap(err, "binding flags")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading configuration file %s", path)
		}
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		// Set appends to slice values, so a flag already given must not be
		// set again.
		if err != nil || f.Changed {
			return
		}
		if err = f.Value.Set(flagValue(v, f)); err != nil {
			err = errors.Wrapf(err, "setting %s", f.Name)
		}
	})
	return err
}

// flagValue is the resolved value of f in the form f.Value.Set expects. A
// slice read from a config file comes back from GetString as "".
func flagValue(v *viper.Viper, f *pflag.Flag) string {
	if f.Value.Type() == "stringSlice" {
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return v.GetString(f.Name)
}
