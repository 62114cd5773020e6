// Package boltdb provides an etl.Index implementation using boltdb. Besides
// the latest entry per step it keeps every entry ever written, in order, so
// the build history of a data directory can be inspected.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/datacatalog/etl"
	"github.com/pkg/errors"
)

var (
	entryBucket   = []byte("entries")
	historyBucket = []byte("history")
)

var _ etl.Index = &Index{}

// Index is an etl.Index which stores entries as JSON in boltdb.
type Index struct {
	Db *bolt.DB
}

// NewIndex opens (creating if needed) the bolt file at filename.
func NewIndex(filename string) (bi *Index, err error) {
	bi = &Index{}
	bi.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = bi.Db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entryBucket); err != nil {
			return errors.Wrap(err, "creating entries bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(historyBucket); err != nil {
			return errors.Wrap(err, "creating history bucket")
		}
		return nil
	})
	if err != nil {
		bi.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return bi, nil
}

// Close syncs and closes the underlying boltdb.
func (bi *Index) Close() error {
	err := bi.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return bi.Db.Close()
}

// Get returns the latest entry for step or an error wrapping etl.ErrNotFound.
func (bi *Index) Get(step string) (e etl.Entry, err error) {
	err = bi.Db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(entryBucket).Get([]byte(step))
		if val == nil {
			return errors.Wrapf(etl.ErrNotFound, "step %s", step)
		}
		return errors.Wrap(json.Unmarshal(val, &e), "decoding entry")
	})
	return e, err
}

// Put stores e as the latest entry of its step and appends it to the
// history.
func (bi *Index) Put(e etl.Entry) error {
	if e.Step == "" {
		return errors.New("entry has no step")
	}
	val, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding entry")
	}
	return bi.Db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(entryBucket).Put([]byte(e.Step), val); err != nil {
			return errors.Wrap(err, "putting entry")
		}
		hb := tx.Bucket(historyBucket)
		seq, err := hb.NextSequence()
		if err != nil {
			return errors.Wrap(err, "getting next sequence")
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return errors.Wrap(hb.Put(key, val), "appending history")
	})
}

// List returns the latest entry of every step, sorted by step.
func (bi *Index) List() ([]etl.Entry, error) {
	return bi.scan(entryBucket)
}

// History returns every entry ever put, oldest first.
func (bi *Index) History() ([]etl.Entry, error) {
	return bi.scan(historyBucket)
}

func (bi *Index) scan(bucket []byte) (out []etl.Entry, err error) {
	err = bi.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var e etl.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrapf(err, "decoding entry %s", k)
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}
