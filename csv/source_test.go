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

package csv_test

import (
	"io"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/datacatalog/etl/csv"
)

func MustGetTempFile(t *testing.T, content string) *os.File {
	f, err := ioutil.TempFile("", "")
	if err != nil {
		t.Fatalf("getting temp file: %v", err)
	}
	n, err := f.WriteString(content)
	if err != nil || n != len(content) {
		t.Fatalf("writing temp file: %v, n: %v", err, n)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("rewinding temp file: %v", err)
	}
	return f
}

func TestCSVSource(t *testing.T) {
	f := MustGetTempFile(t, `blah,bleh,blue
1,asdf,3

2,"qw,er",
`)
	defer os.Remove(f.Name())
	defer f.Close()
	src := csv.NewSource(f, csv.WithName(f.Name()))
	rec, err := src.Record()
	if err != nil {
		t.Fatalf("getting first record: %v", err)
	}
	if len(rec) != 3 {
		t.Fatalf("wrong length record: %v", rec)
	}
	if rec["blah"] != "1" {
		t.Fatalf("blah")
	}
	if rec["bleh"] != "asdf" {
		t.Fatalf("bleh")
	}
	if rec["blue"] != "3" {
		t.Fatalf("blue")
	}

	rec, err = src.Record()
	if err != nil {
		t.Fatalf("getting second record: %v", err)
	}
	if len(rec) != 2 {
		t.Fatalf("empty field should be left out: %v", rec)
	}
	if rec["bleh"] != "qw,er" {
		t.Fatalf("quoted field: %v", rec)
	}

	if _, err = src.Record(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadAllBadHeader(t *testing.T) {
	for name, content := range map[string]string{
		"empty":     "",
		"duplicate": "a,b,a\n1,2,3\n",
		"blank":     "a,,c\n1,2,3\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := csv.ReadAll(strings.NewReader(content))
			if err == nil {
				t.Fatalf("expected error for header %q", content)
			}
		})
	}
}

func TestReadAllShortRow(t *testing.T) {
	_, _, err := csv.ReadAll(strings.NewReader("a,b,c\n1,2\n"))
	if err == nil || !strings.Contains(err.Error(), "len mismatch") {
		t.Fatalf("short row gave: %v", err)
	}
}

func TestReadAll(t *testing.T) {
	header, recs, err := csv.ReadAll(strings.NewReader("\ufeffcountry,year,population\nFrance,2020,67\nChad,2020,16\n"))
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if strings.Join(header, ",") != "country,year,population" {
		t.Fatalf("unexpected header: %v", header)
	}
	if len(recs) != 2 || recs[1]["country"] != "Chad" {
		t.Fatalf("unexpected records: %v", recs)
	}
}
