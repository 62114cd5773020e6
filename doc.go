// etl is the step-resolution and dataset-assembly kit for the data catalog
// pipeline. It contains the helpers every transformation step uses to find
// out who it is, load what it depends on, and write what it produces.
//
// Data moves through a fixed set of channels, each one a step further from
// the raw third-party file:
//
// 1. Snapshot
//
//    A snapshot is an immutable copy of a file published by a data provider,
//    plus a .dvc sidecar describing where it came from (the origin) and under
//    which license it may be reused. Snapshots are the leaves of the
//    dependency graph. They are addressed as
//    snapshot://<namespace>/<version>/<short_name>.<ext> and live under the
//    snapshot directory, or in an object store from which they are pulled on
//    demand.
//
// 2. Meadow
//
//    Meadow steps read a snapshot into a table with as little interpretation
//    as possible: column names are normalized and an index is set, nothing
//    else.
//
// 3. Garden
//
//    Garden steps do the real work. Entity names are harmonized, units are
//    converted, tables from several upstream datasets are joined, and the
//    metadata written next to the step in <short_name>.meta.yml is laid over
//    whatever the upstream origins already said.
//
// 4. Grapher
//
//    Grapher datasets are what the charts read. Long tables with extra
//    dimensions are reshaped into one column per dimension combination, and
//    every variable has to carry a title and a citation.
//
// A step is identified by a canonical string such as
// data://garden/demography/2024-07-15/population. The dependency graph
// (the DAG file) maps each such identifier to the identifiers it consumes. A
// PathFinder, built from the location of the step's own source file, resolves
// the step's identity and looks up its declared dependencies by partial
// coordinates (Pattern), so a step can say "the garden dataset with my short
// name" without spelling out the version.
//
// Steps register themselves with RegisterStep and are executed by a Runner in
// dependency order. Runs are incremental: a build Index remembers the input
// checksum of every step it has produced.
package etl
