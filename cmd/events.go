package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"

	"github.com/datacatalog/etl/kafka"
	"github.com/datacatalog/etl/run"
	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// EventsMain prints the step events published by runs, one JSON object per
// line, until interrupted.
type EventsMain struct {
	KafkaHosts  []string `help:"Kafka brokers to read step events from."`
	KafkaTopic  string   `help:"Topic of step events."`
	KafkaFormat string   `help:"Event encoding: json or avro."`
	Group       string   `help:"Consumer group."`
	Oldest      bool     `help:"Start a new group at the oldest event instead of the newest."`
	Verbose     bool     `flag:"-"`

	Out io.Writer `flag:"-"`
}

func NewEventsMain() *EventsMain {
	return &EventsMain{
		KafkaHosts:  []string{"localhost:9092"},
		KafkaTopic:  "etl-events",
		KafkaFormat: "json",
		Group:       "etl-events",
		Out:         os.Stdout,
	}
}

func (m *EventsMain) Run() error {
	log, _, err := run.NewLogger(m.Verbose, "")
	if err != nil {
		return err
	}
	sub := kafka.NewSubscriber()
	sub.Hosts, sub.Topic, sub.Format = m.KafkaHosts, m.KafkaTopic, m.KafkaFormat
	sub.Group, sub.Oldest, sub.Log = m.Group, m.Oldest, log
	if err := sub.Open(); err != nil {
		return errors.Wrap(err, "opening subscriber")
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	enc := json.NewEncoder(m.Out)
	for {
		e, err := sub.Next(ctx)
		if err == context.Canceled {
			return nil
		} else if err != nil {
			return err
		}
		if err := enc.Encode(e); err != nil {
			return errors.Wrap(err, "writing event")
		}
	}
}

func NewEventsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := NewEventsMain()
	m.Out = stdout
	eventsCommand := &cobra.Command{
		Use:   "events",
		Short: "print step events as runs publish them",
		RunE: func(cmd *cobra.Command, args []string) error {
			m.Verbose = shared.Verbose
			return m.Run()
		},
	}
	if err := commandeer.Flags(eventsCommand.Flags(), m); err != nil {
		panic(err)
	}
	return eventsCommand
}

func init() {
	subcommandFns["events"] = NewEventsCommand
}
