package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/datacatalog/etl"
	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// DepsMain resolves a step file and, optionally, one of its dependencies.
type DepsMain struct {
	BaseDir   string `flag:"-"`
	DAGFile   string `flag:"-"`
	ShortName string `help:"Resolve the dependency with this short name."`
	Channel   string `help:"Restrict the dependency to this channel."`
	Namespace string `help:"Restrict the dependency to this namespace."`
	Version   string `help:"Restrict the dependency to this version."`
	Type      string `help:"Restrict the dependency to this step type (snapshot, data or export)."`
	Private   string `help:"Restrict the dependency to private (true) or public (false) steps."`

	File string    `flag:"-"`
	Out  io.Writer `flag:"-"`
}

func NewDepsMain() *DepsMain {
	return &DepsMain{BaseDir: "."}
}

func (m *DepsMain) Run() error {
	opts := []etl.ConfigOption{etl.OptConfigLogger(etl.NopLogger{})}
	if m.DAGFile != "" {
		opts = append(opts, etl.OptConfigDAGFile(m.DAGFile))
	}
	cfg, err := etl.NewConfig(m.BaseDir, opts...)
	if err != nil {
		return errors.Wrap(err, "getting config")
	}
	pf, err := etl.NewPathFinder(cfg, m.File)
	if err != nil {
		return err
	}
	step, err := pf.Step()
	if err != nil {
		return err
	}
	deps, err := pf.Dependencies()
	if err != nil {
		return err
	}
	fmt.Fprintf(m.Out, "step: %s\n", step)
	for _, d := range deps {
		fmt.Fprintf(m.Out, "  depends on: %s\n", d)
	}

	var depOpts []etl.DepOption
	if m.ShortName != "" {
		depOpts = append(depOpts, etl.OptDepShortName(m.ShortName))
	}
	if m.Channel != "" {
		c, err := etl.ParseChannel(m.Channel)
		if err != nil {
			return err
		}
		depOpts = append(depOpts, etl.OptDepChannel(c))
	}
	if m.Namespace != "" {
		depOpts = append(depOpts, etl.OptDepNamespace(m.Namespace))
	}
	if m.Version != "" {
		depOpts = append(depOpts, etl.OptDepVersion(m.Version))
	}
	if m.Type != "" {
		depOpts = append(depOpts, etl.OptDepType(m.Type))
	}
	if m.Private != "" {
		private, err := strconv.ParseBool(m.Private)
		if err != nil {
			return errors.Wrap(err, "parsing private")
		}
		depOpts = append(depOpts, etl.OptDepPrivate(private))
	}
	if len(depOpts) == 0 {
		return nil
	}
	name, err := pf.DependencyStepName(depOpts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.Out, "resolved: %s\n", name)
	return nil
}

func NewDepsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := NewDepsMain()
	m.Out = stdout
	depsCommand := &cobra.Command{
		Use:   "deps STEP_FILE",
		Short: "print the step a file implements and its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.BaseDir, m.DAGFile = shared.BaseDir, shared.DAGFile
			m.File = args[0]
			return m.Run()
		},
	}
	if err := commandeer.Flags(depsCommand.Flags(), m); err != nil {
		panic(err)
	}
	return depsCommand
}

func init() {
	subcommandFns["deps"] = NewDepsCommand
}
