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
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/linkedin/goavro/v2"
)

type fakeConsumer struct {
	messages chan *sarama.ConsumerMessage
	marked   []int64
	closed   bool
}

func newFakeConsumer(values ...[]byte) *fakeConsumer {
	c := &fakeConsumer{messages: make(chan *sarama.ConsumerMessage, len(values))}
	for i, v := range values {
		c.messages <- &sarama.ConsumerMessage{Topic: "etl-events", Offset: int64(i), Value: v}
	}
	return c
}

func (c *fakeConsumer) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func (c *fakeConsumer) MarkOffset(msg *sarama.ConsumerMessage, metadata string) {
	c.marked = append(c.marked, msg.Offset)
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

func TestSubscriberJSON(t *testing.T) {
	good, err := JSONEvent(testEvent).Encode()
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	c := newFakeConsumer([]byte("not json"), good)
	s := NewSubscriber()
	if err := s.setConsumer(c); err != nil {
		t.Fatalf("setting consumer: %v", err)
	}

	e, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if e.Step != testEvent.Step || e.Type != testEvent.Type || !e.Time.Equal(testEvent.Time) {
		t.Fatalf("unexpected event: %+v", e)
	}
	if len(c.marked) != 2 {
		t.Fatalf("expected both messages marked, got %v", c.marked)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if err := s.Close(); err != nil || !c.closed {
		t.Fatalf("closing: %v", err)
	}
}

func TestSubscriberAvro(t *testing.T) {
	codec, err := goavro.NewCodec(EventSchema)
	if err != nil {
		t.Fatalf("compiling schema: %v", err)
	}
	p := &Publisher{Format: "avro", codec: codec}
	enc, err := p.encode(testEvent)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	value, err := enc.Encode()
	if err != nil {
		t.Fatalf("encoding bytes: %v", err)
	}

	s := NewSubscriber()
	s.Format = "avro"
	if err := s.setConsumer(newFakeConsumer(value)); err != nil {
		t.Fatalf("setting consumer: %v", err)
	}
	e, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !e.Time.Equal(testEvent.Time) {
		t.Fatalf("unexpected time %v", e.Time)
	}
	e.Time = testEvent.Time
	if e != testEvent {
		t.Fatalf("unexpected event:\n got %+v\nwant %+v", e, testEvent)
	}
}

func TestSubscriberClosedChannel(t *testing.T) {
	c := newFakeConsumer()
	close(c.messages)
	s := NewSubscriber()
	if err := s.setConsumer(c); err != nil {
		t.Fatalf("setting consumer: %v", err)
	}
	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("expected error from a closed channel")
	}
	s = NewSubscriber()
	s.Format = "xml"
	if err := s.setConsumer(newFakeConsumer()); err == nil {
		t.Fatal("expected error for an unknown format")
	}
	if _, err := NewSubscriber().Next(context.Background()); err == nil {
		t.Fatal("expected error before open")
	}
}
