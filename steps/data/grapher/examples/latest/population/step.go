// Package population publishes the garden population table with one
// column per sex.
package population

import (
	"context"

	"github.com/datacatalog/etl"
)

func init() {
	etl.RegisterStep(run)
}

func run(ctx context.Context, pf *etl.PathFinder) error {
	garden, err := pf.LoadDataset(etl.OptDepChannel(etl.Garden))
	if err != nil {
		return err
	}
	t, err := garden.ReadTable("population")
	if err != nil {
		return err
	}
	_, err = pf.CreateDataset([]*etl.Table{t}, etl.OptDefaultMetadata(&garden.Metadata))
	return err
}
