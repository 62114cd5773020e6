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

// Package kafka publishes step events to a Kafka topic and reads them back.
package kafka

import (
	"encoding/json"

	"github.com/Shopify/sarama"
	"github.com/datacatalog/etl"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// EventSchema is the Avro schema of an event in the "avro" format. Time is
// milliseconds since the epoch.
const EventSchema = `{
  "type": "record",
  "name": "StepEvent",
  "namespace": "etl",
  "fields": [
    {"name": "type", "type": "string"},
    {"name": "run_id", "type": "string"},
    {"name": "step", "type": "string"},
    {"name": "checksum", "type": "string"},
    {"name": "path", "type": "string"},
    {"name": "error", "type": "string"},
    {"name": "time", "type": "long"}
  ]
}`

// JSONEvent implements the sarama.Encoder interface for Event using json.
type JSONEvent etl.Event

// Encode marshals the event to json.
func (e JSONEvent) Encode() ([]byte, error) {
	return json.Marshal(etl.Event(e))
}

// Length returns the length of the marshalled json.
func (e JSONEvent) Length() int {
	bytes, _ := e.Encode()
	return len(bytes)
}

// Publisher is an etl.Publisher which sends each event as one message keyed
// by step.
type Publisher struct {
	Hosts  []string
	Topic  string
	Format string

	producer sarama.SyncProducer
	codec    *goavro.Codec
}

var _ etl.Publisher = &Publisher{}

// NewPublisher gets a new Publisher with default settings.
func NewPublisher() *Publisher {
	return &Publisher{
		Hosts:  []string{"localhost:9092"},
		Topic:  "etl-events",
		Format: "json",
	}
}

// Open connects to the brokers.
func (p *Publisher) Open() error {
	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(p.Hosts, conf)
	if err != nil {
		return errors.Wrap(err, "getting new producer")
	}
	return p.setProducer(producer)
}

func (p *Publisher) setProducer(producer sarama.SyncProducer) error {
	switch p.Format {
	case "json":
	case "avro":
		codec, err := goavro.NewCodec(EventSchema)
		if err != nil {
			return errors.Wrap(err, "compiling event schema")
		}
		p.codec = codec
	default:
		return errors.Errorf("unknown event format %q", p.Format)
	}
	p.producer = producer
	return nil
}

// Publish sends e.
func (p *Publisher) Publish(e etl.Event) error {
	if p.producer == nil {
		return errors.New("publisher is not open")
	}
	value, err := p.encode(e)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.Topic,
		Key:   sarama.StringEncoder(e.Step),
		Value: value,
	})
	return errors.Wrapf(err, "sending %s event", e.Type)
}

func (p *Publisher) encode(e etl.Event) (sarama.Encoder, error) {
	if p.codec == nil {
		return JSONEvent(e), nil
	}
	buf, err := p.codec.BinaryFromNative(nil, map[string]interface{}{
		"type":     e.Type,
		"run_id":   e.RunID,
		"step":     e.Step,
		"checksum": e.Checksum,
		"path":     e.Path,
		"error":    e.Error,
		"time":     e.Time.UnixNano() / 1e6,
	})
	if err != nil {
		return nil, err
	}
	return sarama.ByteEncoder(buf), nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
