package cmd

import (
	"fmt"
	"io"

	"github.com/datacatalog/etl"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// StepNameMain builds a step identifier from its parts.
type StepNameMain struct {
	Type      string `help:"Step type: data or export. Snapshot steps need none."`
	Channel   string `help:"Channel of the step."`
	Namespace string `help:"Namespace of the step."`
	Version   string `help:"Version of the step: a date, a year or latest."`
	ShortName string `help:"Short name of the step."`
	Ext       string `help:"File extension of a snapshot."`
	Private   bool   `help:"Build the identifier of a private step."`

	Out io.Writer `flag:"-"`
}

func (m *StepNameMain) Run() error {
	c, err := etl.ParseChannel(m.Channel)
	if err != nil {
		return err
	}
	s := etl.Step{
		Type:      m.Type,
		Channel:   c,
		Namespace: m.Namespace,
		Version:   m.Version,
		ShortName: m.ShortName,
		Ext:       m.Ext,
		Private:   m.Private,
	}
	if err := s.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(m.Out, s.String())
	return nil
}

func printStep(w io.Writer, id string) error {
	s, err := etl.ParseStep(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "type:       %s\n", s.Scheme())
	fmt.Fprintf(w, "channel:    %s\n", s.Channel)
	fmt.Fprintf(w, "namespace:  %s\n", s.Namespace)
	fmt.Fprintf(w, "version:    %s\n", s.Version)
	fmt.Fprintf(w, "short_name: %s\n", s.ShortName)
	if s.Ext != "" {
		fmt.Fprintf(w, "ext:        %s\n", s.Ext)
	}
	fmt.Fprintf(w, "private:    %t\n", s.Private)
	fmt.Fprintf(w, "file:       %s\n", s.FileName())
	return nil
}

func NewStepNameCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	stepNameCommand := &cobra.Command{
		Use:   "stepname",
		Short: "parse and build step identifiers",
	}
	stepNameCommand.AddCommand(&cobra.Command{
		Use:   "parse ID",
		Short: "print the parts of a step identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStep(stdout, args[0])
		},
	})

	m := &StepNameMain{Out: stdout}
	buildCommand := &cobra.Command{
		Use:   "build",
		Short: "print the identifier of a step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.Run()
		},
	}
	if err := commandeer.Flags(buildCommand.Flags(), m); err != nil {
		panic(err)
	}
	stepNameCommand.AddCommand(buildCommand)
	return stepNameCommand
}

func init() {
	subcommandFns["stepname"] = NewStepNameCommand
}
