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

package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/datacatalog/etl"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// consumer is the part of a cluster.Consumer a Subscriber uses.
type consumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	MarkOffset(msg *sarama.ConsumerMessage, metadata string)
	Close() error
}

// Subscriber reads step events published by a Publisher, as a member of a
// consumer group.
type Subscriber struct {
	Hosts  []string
	Topic  string
	Group  string
	Format string
	// Oldest starts a new group at the beginning of the topic instead of
	// its end.
	Oldest bool

	Log etl.Logger

	consumer consumer
	codec    *goavro.Codec
}

// NewSubscriber gets a new Subscriber with default settings.
func NewSubscriber() *Subscriber {
	return &Subscriber{
		Hosts:  []string{"localhost:9092"},
		Topic:  "etl-events",
		Group:  "etl-events",
		Format: "json",
		Log:    etl.NopLogger{},
	}
}

// Open joins the consumer group.
func (s *Subscriber) Open() error {
	config := cluster.NewConfig()
	config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Group.Return.Notifications = true
	if s.Oldest {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	c, err := cluster.NewConsumer(s.Hosts, s.Group, []string{s.Topic}, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}
	go func() {
		for err := range c.Errors() {
			s.Log.Printf("consuming events: %v", err)
		}
	}()
	go func() {
		for ntf := range c.Notifications() {
			s.Log.Debugf("rebalanced: %+v", ntf)
		}
	}()
	return s.setConsumer(c)
}

func (s *Subscriber) setConsumer(c consumer) error {
	switch s.Format {
	case "json":
	case "avro":
		codec, err := goavro.NewCodec(EventSchema)
		if err != nil {
			return errors.Wrap(err, "compiling event schema")
		}
		s.codec = codec
	default:
		return errors.Errorf("unknown event format %q", s.Format)
	}
	if s.Log == nil {
		s.Log = etl.NopLogger{}
	}
	s.consumer = c
	return nil
}

// Next blocks until the next event arrives or ctx is done. A message which
// cannot be decoded is logged, marked and skipped.
func (s *Subscriber) Next(ctx context.Context) (etl.Event, error) {
	if s.consumer == nil {
		return etl.Event{}, errors.New("subscriber is not open")
	}
	for {
		select {
		case <-ctx.Done():
			return etl.Event{}, ctx.Err()
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				return etl.Event{}, errors.New("messages channel closed")
			}
			e, err := s.decode(msg.Value)
			s.consumer.MarkOffset(msg, "")
			if err != nil {
				s.Log.Printf("skipping message at %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
				continue
			}
			return e, nil
		}
	}
}

func (s *Subscriber) decode(value []byte) (e etl.Event, err error) {
	if s.codec == nil {
		err = json.Unmarshal(value, &e)
		return e, errors.Wrap(err, "decoding json event")
	}
	native, _, err := s.codec.NativeFromBinary(value)
	if err != nil {
		return e, errors.Wrap(err, "decoding avro event")
	}
	rec, ok := native.(map[string]interface{})
	if !ok {
		return e, errors.Errorf("avro event is a %T", native)
	}
	str := func(k string) string {
		v, _ := rec[k].(string)
		return v
	}
	e.Type, e.RunID, e.Step = str("type"), str("run_id"), str("step")
	e.Checksum, e.Path, e.Error = str("checksum"), str("path"), str("error")
	if ms, ok := rec["time"].(int64); ok {
		e.Time = time.Unix(0, ms*int64(time.Millisecond))
	}
	return e, nil
}

// Close leaves the consumer group.
func (s *Subscriber) Close() error {
	if s.consumer == nil {
		return nil
	}
	return errors.Wrap(s.consumer.Close(), "closing kafka consumer")
}
