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

// Package leveldb provides an etl.Index implementation using leveldb.
package leveldb

import (
	"encoding/json"
	"hash/fnv"
	"os"
	"sync"

	"github.com/datacatalog/etl"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ etl.Index = &Index{}

var entryPrefix = []byte("entry/")

// Index is an etl.Index which stores entries as JSON in leveldb. An entry is
// only replaced by one that is at least as recent, so concurrent runs over
// the same data directory cannot roll a step back.
type Index struct {
	db   *leveldb.DB
	lock valueLocker
}

// NewIndex opens (creating if needed) the leveldb at dirname.
func NewIndex(dirname string) (*Index, error) {
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	db, err := leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return &Index{db: db, lock: newBucketVLock()}, nil
}

// Close closes the underlying leveldb.
func (li *Index) Close() error {
	return errors.Wrap(li.db.Close(), "closing leveldb")
}

func entryKey(step string) []byte {
	return append(append([]byte(nil), entryPrefix...), step...)
}

// Get returns the entry for step or an error wrapping etl.ErrNotFound.
func (li *Index) Get(step string) (e etl.Entry, err error) {
	data, err := li.db.Get(entryKey(step), nil)
	if err == leveldb.ErrNotFound {
		return e, errors.Wrapf(etl.ErrNotFound, "step %s", step)
	} else if err != nil {
		return e, errors.Wrap(err, "reading entry")
	}
	return e, errors.Wrap(json.Unmarshal(data, &e), "decoding entry")
}

// Put stores e unless a more recent entry for the same step is already
// there.
func (li *Index) Put(e etl.Entry) error {
	if e.Step == "" {
		return errors.New("entry has no step")
	}
	key := entryKey(e.Step)
	li.lock.Lock(key)
	defer li.lock.Unlock(key)

	cur, err := li.Get(e.Step)
	if err == nil && cur.UpdatedAt.After(e.UpdatedAt) {
		return nil
	} else if err != nil && !etl.IsNotFound(err) {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding entry")
	}
	return errors.Wrap(li.db.Put(key, data, &opt.WriteOptions{}), "putting entry")
}

// List returns every entry, sorted by step.
func (li *Index) List() ([]etl.Entry, error) {
	iter := li.db.NewIterator(util.BytesPrefix(entryPrefix), nil)
	defer iter.Release()
	var out []etl.Entry
	for iter.Next() {
		var e etl.Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, errors.Wrapf(err, "decoding entry %s", iter.Key())
		}
		out = append(out, e)
	}
	return out, errors.Wrap(iter.Error(), "iterating entries")
}

type valueLocker interface {
	Lock(val []byte)
	Unlock(val []byte)
}

type bucketVLock struct {
	ms []sync.Mutex
}

func newBucketVLock() bucketVLock {
	return bucketVLock{
		ms: make([]sync.Mutex, 64),
	}
}

func (b bucketVLock) Lock(val []byte) {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	b.ms[hsh.Sum32()%uint32(len(b.ms))].Lock()
}

func (b bucketVLock) Unlock(val []byte) {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	b.ms[hsh.Sum32()%uint32(len(b.ms))].Unlock()
}
