package etl

import (
	"strings"

	"github.com/pkg/errors"
)

// GrapherChecks validates a dataset bound for the grapher channel: every
// table is indexed by an entity and a time column, and every variable has a
// title and at least one origin or source. All problems are reported
// together.
func GrapherChecks(ds *Dataset) error {
	var problems []string
	for _, name := range ds.TableNames() {
		t, err := ds.ReadTable(name)
		if err != nil {
			return err
		}
		var hasEntity, hasTime bool
		for _, c := range t.Index() {
			hasEntity = hasEntity || contains(entityColumns, c)
			hasTime = hasTime || contains(timeColumns, c)
		}
		if !hasEntity {
			problems = append(problems, name+": index has no entity column (country or entity)")
		}
		if !hasTime {
			problems = append(problems, name+": index has no time column (year or date)")
		}
		for _, c := range t.Variables() {
			if strings.TrimSpace(c.Meta.Title) == "" {
				problems = append(problems, name+"."+c.Name+": missing title")
			}
			if len(c.Meta.Origins) == 0 && len(c.Meta.Sources) == 0 {
				problems = append(problems, name+"."+c.Name+": no origins or sources")
			}
		}
	}
	if len(problems) > 0 {
		return errors.Errorf("grapher checks failed for %s:\n  %s", ds.Metadata.ShortName, strings.Join(problems, "\n  "))
	}
	return nil
}
