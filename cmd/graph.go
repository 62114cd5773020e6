package cmd

import (
	"fmt"
	"io"

	"github.com/datacatalog/etl"
	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// GraphMain lists steps in the order a run would build them.
type GraphMain struct {
	BaseDir string `flag:"-"`
	DAGFile string `flag:"-"`
	Archive bool   `help:"List the archive DAG."`
	Reverse bool   `help:"List what depends on the given steps instead of what they depend on."`

	Steps []string  `flag:"-"`
	Out   io.Writer `flag:"-"`
}

func (m *GraphMain) Run() error {
	opts := []etl.ConfigOption{etl.OptConfigLogger(etl.NopLogger{})}
	if m.DAGFile != "" {
		opts = append(opts, etl.OptConfigDAGFile(m.DAGFile))
	}
	cfg, err := etl.NewConfig(m.BaseDir, opts...)
	if err != nil {
		return errors.Wrap(err, "getting config")
	}
	dag, err := cfg.DAGs.Live()
	if m.Archive {
		dag, err = cfg.DAGs.Archive()
	}
	if err != nil {
		return err
	}

	steps := dag.Steps()
	if len(m.Steps) > 0 {
		known := make(map[string]bool, len(steps))
		for _, s := range steps {
			known[s] = true
		}
		for _, s := range m.Steps {
			if !known[s] {
				return errors.Errorf("step %s is not in the dag", s)
			}
		}
		if m.Reverse {
			steps = dag.Downstream(m.Steps...)
		} else {
			steps = dag.Upstream(m.Steps...)
		}
	}
	order, err := dag.Order(steps)
	if err != nil {
		return err
	}
	for _, s := range order {
		fmt.Fprintln(m.Out, s)
		for _, d := range dag[s] {
			fmt.Fprintf(m.Out, "  <- %s\n", d)
		}
	}
	return nil
}

func NewGraphCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := &GraphMain{BaseDir: ".", Out: stdout}
	graphCommand := &cobra.Command{
		Use:   "graph [STEP...]",
		Short: "list steps in build order",
		RunE: func(cmd *cobra.Command, args []string) error {
			m.BaseDir, m.DAGFile = shared.BaseDir, shared.DAGFile
			m.Steps = args
			return m.Run()
		},
	}
	if err := commandeer.Flags(graphCommand.Flags(), m); err != nil {
		panic(err)
	}
	return graphCommand
}

func init() {
	subcommandFns["graph"] = NewGraphCommand
}
