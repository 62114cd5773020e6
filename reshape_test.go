package etl

import (
	"strings"
	"testing"

	"github.com/datacatalog/etl/test"
)

func TestLongToWide(t *testing.T) {
	wide, reshaped, err := LongToWide(newPopulationTable(t))
	test.ErrNil(t, err, "reshaping")
	if !reshaped {
		t.Fatal("expected the table to be reshaped")
	}
	test.MustBe(t, wide.ColumnNames(), []string{"country", "year", "population__sex_female", "population__sex_male"})
	test.MustBe(t, wide.Index(), []string{"country", "year"})
	test.MustBe(t, wide.NumRows(), 2)

	female := wide.Column("population__sex_female")
	test.MustBe(t, female.Values, []interface{}{int64(30), int64(7)})
	test.MustBe(t, female.Meta.Title, "Population - sex: female")
	test.MustBe(t, female.Meta.Dimensions, map[string]string{"sex": "female"})
	test.MustBe(t, female.Meta.Unit, "people")
	test.MustBe(t, wide.Column("population__sex_male").Values, []interface{}{int64(28), nil})
}

func TestLongToWideDropsEmpty(t *testing.T) {
	tbl := newPopulationTable(t)
	pop := tbl.Column("population")
	pop.Values[1], pop.Values[3] = nil, nil
	wide, _, err := LongToWide(tbl)
	test.ErrNil(t, err, "reshaping")
	test.MustBe(t, wide.ColumnNames(), []string{"country", "year", "population__sex_female"})
}

func TestLongToWideNoDimensions(t *testing.T) {
	tbl := newPopulationTable(t)
	test.ErrNil(t, tbl.SetIndex("country", "year"), "index")
	got, reshaped, err := LongToWide(tbl)
	test.ErrNil(t, err, "reshaping")
	if reshaped || got != tbl {
		t.Fatal("a table without dimensions should come back unchanged")
	}
}

func TestLongToWideNameCollision(t *testing.T) {
	tbl := NewTable("population")
	test.ErrNil(t, tbl.AddColumn("country", []interface{}{"France", "France"}, VariableMeta{}), "country")
	test.ErrNil(t, tbl.AddColumn("year", []interface{}{int64(2000), int64(2000)}, VariableMeta{}), "year")
	test.ErrNil(t, tbl.AddColumn("age", []interface{}{"0-4", "0 4"}, VariableMeta{}), "age")
	test.ErrNil(t, tbl.AddColumn("population", []interface{}{int64(1), int64(2)}, VariableMeta{Title: "Population"}), "population")
	test.ErrNil(t, tbl.SetIndex("country", "year", "age"), "index")

	_, _, err := LongToWide(tbl)
	if err == nil || !strings.Contains(err.Error(), "population__age_0_4") {
		t.Fatalf("expected a column name collision error, got %v", err)
	}
}
