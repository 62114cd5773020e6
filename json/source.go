// Package json reads snapshot files holding JSON records, either one object
// after another or a single top-level array of objects.
package json

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

type Source struct {
	br      *bufio.Reader
	dec     *json.Decoder
	inArray bool
	started bool
}

func NewSource(r io.Reader) *Source {
	br := bufio.NewReader(r)
	dec := json.NewDecoder(br)
	dec.UseNumber()
	return &Source{
		br:  br,
		dec: dec,
	}
}

// Record returns the next object. Numbers are json.Number so that integers
// survive. It returns io.EOF after the last record.
func (s *Source) Record() (rec map[string]interface{}, err error) {
	if !s.started {
		s.started = true
		if err := s.start(); err != nil {
			return nil, err
		}
	}
	if s.inArray && !s.dec.More() {
		if _, err := s.dec.Token(); err != nil {
			return nil, errors.Wrap(err, "closing array")
		}
		s.inArray = false
		return nil, io.EOF
	}
	var res map[string]interface{}
	err = s.dec.Decode(&res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// start consumes the opening bracket of a top-level array, if there is one.
// A stream of objects is left untouched.
func (s *Source) start() error {
	for {
		b, err := s.br.Peek(1)
		if err != nil {
			return nil
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = s.br.ReadByte()
			continue
		case '[':
			if _, err := s.dec.Token(); err != nil {
				return errors.Wrap(err, "opening array")
			}
			s.inArray = true
		}
		return nil
	}
}

// ReadAll returns every record of r.
func ReadAll(r io.Reader) ([]map[string]interface{}, error) {
	src := NewSource(r)
	var recs []map[string]interface{}
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return recs, nil
		} else if err != nil {
			return nil, errors.Wrap(err, "decoding record")
		}
		recs = append(recs, rec)
	}
}
