// Package population harmonizes country names and describes the
// population variable.
package population

import (
	"context"

	"github.com/datacatalog/etl"
)

func init() {
	etl.RegisterStep(run)
}

func run(ctx context.Context, pf *etl.PathFinder) error {
	meadow, err := pf.LoadDataset(etl.OptDepChannel(etl.Meadow))
	if err != nil {
		return err
	}
	t, err := meadow.ReadTable("population")
	if err != nil {
		return err
	}
	if err := pf.HarmonizeCountries(t); err != nil {
		return err
	}
	_, err = pf.CreateDataset([]*etl.Table{t}, etl.OptDefaultMetadata(&meadow.Metadata))
	return err
}
