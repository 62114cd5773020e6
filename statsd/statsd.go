// Package statsd sends run statistics to a statsd or DogStatsD agent.
package statsd

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/datacatalog/etl"
	"github.com/pkg/errors"
)

// Statter is an etl.Statter backed by a DogStatsD client. Send errors are
// logged, never returned.
type Statter struct {
	client *statsd.Client
	log    etl.Logger
}

var _ etl.Statter = &Statter{}

// NewStatter connects to the agent at addr. Every metric name is prefixed
// with namespace.
func NewStatter(addr, namespace string, log etl.Logger) (*Statter, error) {
	c, err := statsd.New(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to statsd at %s", addr)
	}
	c.Namespace = namespace
	if log == nil {
		log = etl.NopLogger{}
	}
	return &Statter{client: c, log: log}, nil
}

func (s *Statter) check(name string, err error) {
	if err != nil {
		s.log.Debugf("sending stat %s: %v", name, err)
	}
}

func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	s.check(name, s.client.Count(name, value, tags, rate))
}

func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	s.check(name, s.client.Gauge(name, value, tags, rate))
}

func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {
	s.check(name, s.client.Histogram(name, value, tags, rate))
}

func (s *Statter) Set(name string, value string, rate float64, tags ...string) {
	s.check(name, s.client.Set(name, value, tags, rate))
}

func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.check(name, s.client.Timing(name, value, tags, rate))
}

// Close flushes and closes the client.
func (s *Statter) Close() error {
	return s.client.Close()
}
