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

package leveldb

import (
	"io/ioutil"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/datacatalog/etl"
)

func TestIndex(t *testing.T) {
	levelDir := tempDirName(t)
	defer os.RemoveAll(levelDir)
	li, err := NewIndex(levelDir)
	if err != nil {
		t.Fatalf("couldn't get level index: %v", err)
	}
	if _, err := li.Get("data://garden/x/2020/foo"); !etl.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(time.Hour)
	if err := li.Put(etl.Entry{Step: "data://garden/x/2020/foo", Checksum: "new", UpdatedAt: recent}); err != nil {
		t.Fatalf("putting: %v", err)
	}
	if err := li.Put(etl.Entry{Step: "data://garden/x/2020/foo", Checksum: "old", UpdatedAt: old}); err != nil {
		t.Fatalf("putting older: %v", err)
	}
	e, err := li.Get("data://garden/x/2020/foo")
	if err != nil {
		t.Fatalf("getting: %v", err)
	}
	if e.Checksum != "new" {
		t.Fatalf("older entry replaced newer one: %+v", e)
	}

	if err := li.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
	li, err = NewIndex(levelDir)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer li.Close()
	if e, err = li.Get("data://garden/x/2020/foo"); err != nil || e.Checksum != "new" {
		t.Fatalf("after reopen: %+v, %v", e, err)
	}
}

func TestIndexConcurrentPut(t *testing.T) {
	levelDir := tempDirName(t)
	defer os.RemoveAll(levelDir)
	li, err := NewIndex(levelDir)
	if err != nil {
		t.Fatalf("couldn't get level index: %v", err)
	}
	defer li.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			step := "data://garden/x/2020/s" + strconv.Itoa(i%5)
			err := li.Put(etl.Entry{Step: step, Checksum: strconv.Itoa(i), UpdatedAt: base.Add(time.Duration(i) * time.Minute)})
			if err != nil {
				t.Errorf("putting %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	list, err := li.List()
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(list))
	}
	for j, e := range list {
		// the latest put for s<j> is i = 15+j
		if e.Checksum != strconv.Itoa(15+j) {
			t.Fatalf("entry %d: expected latest checksum %d, got %+v", j, 15+j, e)
		}
	}
}

func tempDirName(t *testing.T) string {
	dir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatalf("couldn't get temp dir: %v", err)
	}
	return dir
}
