// Package population loads the population snapshot as a table.
package population

import (
	"context"

	"github.com/datacatalog/etl"
)

func init() {
	etl.RegisterStep(run)
}

func run(ctx context.Context, pf *etl.PathFinder) error {
	snap, err := pf.LoadSnapshot()
	if err != nil {
		return err
	}
	t, err := snap.ReadTable(ctx)
	if err != nil {
		return err
	}
	if err := t.SetIndex("country", "year", "sex"); err != nil {
		return err
	}
	_, err = pf.CreateDataset([]*etl.Table{t}, etl.OptSnapshotMetadata(snap.Metadata))
	return err
}
