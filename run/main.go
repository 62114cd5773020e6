// Package run holds the command which builds the steps of a DAG.
package run

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/datacatalog/etl"
	"github.com/datacatalog/etl/aws/s3"
	"github.com/datacatalog/etl/boltdb"
	"github.com/datacatalog/etl/kafka"
	"github.com/datacatalog/etl/leveldb"
	"github.com/datacatalog/etl/statsd"
	"github.com/datacatalog/etl/termstat"
	"github.com/pkg/errors"
)

// Main builds the steps matching Steps and everything they depend on.
type Main struct {
	BaseDir    string `flag:"-"`
	DAGFile    string `flag:"-"`
	Workers    int    `help:"Number of steps to run at once."`
	Force      bool   `help:"Rebuild steps even when their inputs are unchanged."`
	DryRun     bool   `help:"Only print what would run."`
	Only       bool   `help:"Run only the matching steps, not their dependencies."`
	Downstream bool   `help:"Also run every step depending on a matching step."`
	Archive    bool   `help:"Run against the archive DAG."`

	IndexBackend string `help:"Build index: memory, bolt or leveldb."`
	IndexPath    string `help:"Build index file or directory. Defaults to a path under the data dir."`

	S3Bucket string `help:"Bucket to pull snapshot content from."`
	S3Region string `help:"AWS region of the snapshot bucket."`
	S3Prefix string `help:"Key prefix of snapshot content in the bucket."`

	KafkaHosts  []string `help:"Kafka brokers to publish step events to. Events are not published when empty."`
	KafkaTopic  string   `help:"Topic for step events."`
	KafkaFormat string   `help:"Event encoding: json or avro."`

	StatsdAddr string `help:"host:port of a statsd agent."`
	Verbose    bool   `flag:"-"`
	LogPath    string `help:"Log to this file instead of stderr."`
	Progress   bool   `help:"Print progress counters to stderr."`

	Steps []string `flag:"-"`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	return &Main{
		BaseDir:      ".",
		Workers:      1,
		IndexBackend: "bolt",
		S3Region:     "us-east-1",
		KafkaTopic:   "etl-events",
		KafkaFormat:  "json",
	}
}

// Run runs until the plan is done, a step fails or the process is
// interrupted.
func (m *Main) Run() error {
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

	runner, closers, err := m.Setup()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				runner.Config.Log.Printf("closing: %v", cerr)
			}
		}
	}()
	if err != nil {
		return err
	}

	start := time.Now()
	if err := runner.Run(ctx, m.Steps...); err != nil {
		return errors.Wrap(err, "running steps")
	}
	runner.Config.Log.Printf("done in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// Setup builds the Runner described by m. The returned closers must be
// closed, in reverse, even when err is not nil.
func (m *Main) Setup() (runner *etl.Runner, closers []io.Closer, err error) {
	log, logFile, err := NewLogger(m.Verbose, m.LogPath)
	if err != nil {
		return nil, nil, err
	}
	if logFile != nil {
		closers = append(closers, logFile)
	}
	runner = &etl.Runner{Config: &etl.Config{Log: log}}

	opts := []etl.ConfigOption{etl.OptConfigLogger(log)}
	if m.DAGFile != "" {
		opts = append(opts, etl.OptConfigDAGFile(m.DAGFile))
	}

	switch {
	case m.StatsdAddr != "":
		st, err := statsd.NewStatter(m.StatsdAddr, "etl.", log)
		if err != nil {
			return runner, closers, err
		}
		closers = append(closers, st)
		opts = append(opts, etl.OptConfigStatter(st))
	case m.Progress:
		tc := termstat.NewCollector(os.Stderr, 2*time.Second)
		closers = append(closers, tc)
		opts = append(opts, etl.OptConfigStatter(tc))
	}

	if m.S3Bucket != "" {
		f, err := s3.NewFetcher(s3.OptSrcBucket(m.S3Bucket), s3.OptSrcRegion(m.S3Region), s3.OptSrcPrefix(m.S3Prefix))
		if err != nil {
			return runner, closers, errors.Wrap(err, "getting snapshot fetcher")
		}
		opts = append(opts, etl.OptConfigFetcher(f))
	}

	cfg, err := etl.NewConfig(m.BaseDir, opts...)
	if err != nil {
		return runner, closers, errors.Wrap(err, "getting config")
	}
	runner = etl.NewRunner(cfg)
	runner.Workers = m.Workers
	runner.Force = m.Force
	runner.DryRun = m.DryRun
	runner.Only = m.Only
	runner.Downstream = m.Downstream
	runner.Archive = m.Archive

	idx, err := OpenIndex(m.IndexBackend, m.IndexPath, cfg)
	if err != nil {
		return runner, closers, err
	}
	closers = append(closers, idx)
	runner.Index = idx

	if len(m.KafkaHosts) > 0 {
		p := kafka.NewPublisher()
		p.Hosts = m.KafkaHosts
		p.Topic = m.KafkaTopic
		p.Format = m.KafkaFormat
		if err := p.Open(); err != nil {
			return runner, closers, errors.Wrap(err, "opening event publisher")
		}
		closers = append(closers, p)
		runner.Publisher = p
	}
	return runner, closers, nil
}

// OpenIndex opens the build index backend. An empty path puts bolt and
// leveldb indexes under the data directory of cfg.
func OpenIndex(backend, path string, cfg *etl.Config) (etl.Index, error) {
	switch backend {
	case "", "memory":
		return etl.NewMapIndex(), nil
	case "bolt":
		if path == "" {
			path = filepath.Join(cfg.DataDir, ".etl-index.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "creating index directory")
		}
		idx, err := boltdb.NewIndex(path)
		if err != nil {
			return nil, errors.Wrap(err, "opening bolt index")
		}
		return idx, nil
	case "leveldb":
		if path == "" {
			path = filepath.Join(cfg.DataDir, ".etl-index")
		}
		idx, err := leveldb.NewIndex(path)
		if err != nil {
			return nil, errors.Wrap(err, "opening leveldb index")
		}
		return idx, nil
	default:
		return nil, errors.Errorf("unknown index backend %q", backend)
	}
}

// NewLogger returns the logger for a command. When path is set the log goes
// to that file, which the caller must close.
func NewLogger(verbose bool, path string) (etl.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening log file")
		}
		w = f
	}
	var log etl.Logger = etl.NewStdLogger(w)
	if verbose {
		log = etl.NewVerboseLogger(w)
	}
	if f == nil {
		return log, nil, nil
	}
	return log, f, nil
}
