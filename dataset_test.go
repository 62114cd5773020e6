package etl

import (
	"path/filepath"
	"testing"

	"github.com/datacatalog/etl/test"
)

func TestDatasetSaveOpen(t *testing.T) {
	dir, done := test.TempTree(t, map[string]string{})
	defer done()
	dest := filepath.Join(dir, "garden", "demography", "2024-07-15", "population")

	meta := DatasetMeta{
		Channel:   Garden,
		Namespace: "demography",
		Version:   "2024-07-15",
		ShortName: "population",
		Title:     "Population",
		Licenses:  []License{{Name: "CC BY 4.0"}},
		IsPublic:  true,
	}
	ds := NewDataset(dest, meta)
	ds.SourceChecksum = "00000000000000ff"
	tbl := newPopulationTable(t)
	test.ErrNil(t, ds.Add(tbl), "adding table")

	mixed := NewTable("mixed")
	test.ErrNil(t, mixed.AddColumn("a", []interface{}{1.5, "x", true, nil, 3}, VariableMeta{}), "adding column")
	test.ErrNil(t, ds.Add(mixed), "adding mixed")
	if err := ds.Add(NewTable("mixed")); err == nil {
		t.Fatal("expected error adding a table twice")
	}
	if DatasetExists(dest) {
		t.Fatal("dataset should not exist before Save")
	}
	test.ErrNil(t, ds.Save(), "saving")
	if !DatasetExists(dest) {
		t.Fatal("dataset should exist after Save")
	}

	got, err := OpenDataset(dest)
	test.ErrNil(t, err, "opening")
	test.MustBe(t, got.Metadata, meta)
	test.MustBe(t, got.SourceChecksum, "00000000000000ff")
	test.MustBe(t, got.TableNames(), []string{"population", "mixed"})
	test.MustBe(t, got.Step().String(), "data://garden/demography/2024-07-15/population")

	pop, err := got.ReadTable("population")
	test.ErrNil(t, err, "reading population")
	test.MustBe(t, pop.Index(), []string{"country", "year", "sex"})
	test.MustBe(t, pop.Column("population").Values, []interface{}{int64(30), int64(28), int64(7), nil})
	test.MustBe(t, pop.Column("population").Meta, tbl.Column("population").Meta)

	m, err := got.ReadTable("mixed")
	test.ErrNil(t, err, "reading mixed")
	test.MustBe(t, m.Column("a").Values, []interface{}{1.5, "x", true, nil, int64(3)})

	if _, err := got.ReadTable("nope"); err == nil {
		t.Fatal("expected error reading an unknown table")
	}
}
