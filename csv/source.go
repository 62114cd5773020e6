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

// Package csv reads snapshot files in CSV format into header-keyed records.
package csv

import (
	"encoding/csv"
	"io"
	"log"
	"strings"

	"github.com/pkg/errors"
)

// Source reads records from a CSV stream. The first line is the header; each
// later line is returned by Record as a map keyed by header field. Empty
// fields are left out of the map. Source is not safe for concurrent use.
type Source struct {
	r      *csv.Reader
	name   string
	header []string
	line   int
}

// Option is a functional option to pass to NewSource.
type Option func(*Source)

// WithName sets the name used in error messages, typically the file path.
func WithName(name string) Option {
	return func(s *Source) {
		s.name = name
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(s *Source) {
		s.r.Comma = c
	}
}

// NewSource creates a Source reading from r.
func NewSource(r io.Reader, options ...Option) *Source {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	src := &Source{r: cr, name: "csv"}
	for _, opt := range options {
		opt(src)
	}
	return src
}

// Header returns the header line, reading it if no record has been read yet.
func (s *Source) Header() ([]string, error) {
	if s.header != nil {
		return s.header, nil
	}
	header, err := s.r.Read()
	if err == io.EOF {
		return nil, errors.Errorf("%s: empty file", s.name)
	} else if err != nil {
		return nil, errors.Wrapf(err, "%s: reading header", s.name)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if err := validateHeader(header); err != nil {
		return nil, errors.Wrapf(err, "validating header of %s", s.name)
	}
	s.header = header
	s.line = 1
	return header, nil
}

// Record returns the next data line. It returns io.EOF after the last one.
// Blank lines are skipped.
func (s *Source) Record() (map[string]string, error) {
	header, err := s.Header()
	if err != nil {
		return nil, err
	}
	for {
		row, err := s.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		} else if err != nil {
			return nil, errors.Wrapf(err, "%s: reading line %d", s.name, s.line+1)
		}
		s.line++
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec, err := parseRecord(header, row)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: parsing line %d", s.name, s.line)
		}
		return rec, nil
	}
}

// ReadAll returns the header and every record of r.
func ReadAll(r io.Reader, options ...Option) (header []string, recs []map[string]string, err error) {
	src := NewSource(r, options...)
	header, err = src.Header()
	if err != nil {
		return nil, nil, err
	}
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return header, recs, nil
		} else if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
	}
}

func parseRecord(header []string, row []string) (map[string]string, error) {
	if len(header) > len(row) {
		return nil, errors.Errorf("header/row len mismatch: %dvs%d, %v and %v", len(header), len(row), header, row)
	} else if len(row) > len(header) {
		for i := len(header); i < len(row); i++ {
			if strings.TrimSpace(row[i]) != "" {
				log.Printf("data in non headered field: %v, %d", row, i)
			}
		}
	}
	ret := make(map[string]string, len(header))
	for i := 0; i < len(header); i++ {
		if row[i] == "" {
			continue
		}
		ret[header[i]] = row[i]
	}
	return ret, nil
}

func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			return errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}
