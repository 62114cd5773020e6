package etl

import (
	"testing"
	"time"

	"github.com/datacatalog/etl/test"
)

func TestMapIndex(t *testing.T) {
	idx := NewMapIndex()
	if _, err := idx.Get("data://garden/a/1/b"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	now := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	for _, e := range []Entry{
		{Step: "data://meadow/a/1/b", Checksum: "1", UpdatedAt: now},
		{Step: "data://garden/a/1/b", Checksum: "2", UpdatedAt: now},
		{Step: "data://garden/a/1/b", Checksum: "3", UpdatedAt: now},
	} {
		test.ErrNil(t, idx.Put(e), "put "+e.Step)
	}
	if err := idx.Put(Entry{Checksum: "x"}); err == nil {
		t.Fatal("expected error for an entry without a step")
	}
	e, err := idx.Get("data://garden/a/1/b")
	test.ErrNil(t, err, "get")
	test.MustBe(t, e.Checksum, "3")

	all, err := idx.List()
	test.ErrNil(t, err, "list")
	test.MustBe(t, all, []Entry{
		{Step: "data://garden/a/1/b", Checksum: "3", UpdatedAt: now},
		{Step: "data://meadow/a/1/b", Checksum: "1", UpdatedAt: now},
	})
	test.ErrNil(t, idx.Close(), "close")
}
