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
	"encoding/json"
	"testing"
	"time"

	"github.com/Shopify/sarama/mocks"
	"github.com/datacatalog/etl"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

var testEvent = etl.Event{
	Type:     etl.EventStepBuilt,
	RunID:    "run-1",
	Step:     "data://garden/examples/latest/population",
	Checksum: "00000000deadbeef",
	Time:     time.Unix(1500000000, 0),
}

func TestPublishJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got etl.Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Step != testEvent.Step || got.Type != testEvent.Type || got.Checksum != testEvent.Checksum {
			return errors.Errorf("unexpected event: %+v", got)
		}
		return nil
	})
	p := NewPublisher()
	if err := p.setProducer(producer); err != nil {
		t.Fatalf("setting producer: %v", err)
	}
	if err := p.Publish(testEvent); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
}

func TestPublishAvro(t *testing.T) {
	codec, err := goavro.NewCodec(EventSchema)
	if err != nil {
		t.Fatalf("compiling schema: %v", err)
	}
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		native, _, err := codec.NativeFromBinary(val)
		if err != nil {
			return err
		}
		rec := native.(map[string]interface{})
		if rec["step"] != testEvent.Step || rec["time"] != int64(1500000000000) {
			return errors.Errorf("unexpected record: %v", rec)
		}
		return nil
	})
	p := NewPublisher()
	p.Format = "avro"
	if err := p.setProducer(producer); err != nil {
		t.Fatalf("setting producer: %v", err)
	}
	if err := p.Publish(testEvent); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
}

func TestPublishNotOpen(t *testing.T) {
	p := NewPublisher()
	if err := p.Publish(testEvent); err == nil {
		t.Fatal("expected error publishing before open")
	}
	p.Format = "xml"
	if err := p.setProducer(mocks.NewSyncProducer(t, nil)); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
