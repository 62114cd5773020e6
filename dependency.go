package etl

// Dependency is what LoadDependency returns: either a *Snapshot or a
// *Dataset, depending on whether the resolved dependency lives in the
// snapshot channel. Callers narrow it with a type switch:
//
//	switch d := dep.(type) {
//	case *etl.Snapshot:
//		...
//	case *etl.Dataset:
//		...
//	}
type Dependency interface {
	Step() Step

	dependency()
}

var (
	_ Dependency = (*Snapshot)(nil)
	_ Dependency = (*Dataset)(nil)
)
