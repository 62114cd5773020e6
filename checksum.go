package etl

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
)

// InputChecksum hashes everything a step's output depends on: its source
// files, its sidecar files, and the checksums of its dependencies (in the
// given order). Missing sidecars are skipped. The result is a hex xxhash64.
func InputChecksum(files []string, depSums []string) (string, error) {
	h := xxhash.New()
	for _, f := range files {
		if err := hashFile(h, f); err != nil {
			return "", err
		}
	}
	for _, s := range depSums {
		_, _ = io.WriteString(h, "dep:"+s+"\n")
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "opening input")
	}
	defer f.Close()
	_, _ = io.WriteString(w, "file:"+filepath.Base(path)+"\n")
	_, err = io.Copy(w, f)
	return errors.Wrapf(err, "hashing %s", path)
}

// stepInputs lists the files hashed for the step whose PathFinder is pf: the
// source itself (every .go file of a directory-form step) and the metadata,
// override and countries sidecars.
func stepInputs(pf *PathFinder) ([]string, error) {
	var files []string
	if filepath.Base(pf.Directory()) == pf.ShortName() {
		infos, err := ioutil.ReadDir(pf.Directory())
		if err != nil {
			return nil, errors.Wrap(err, "listing step directory")
		}
		for _, fi := range infos {
			if !fi.IsDir() && strings.HasSuffix(fi.Name(), ".go") && !strings.HasSuffix(fi.Name(), "_test.go") {
				files = append(files, filepath.Join(pf.Directory(), fi.Name()))
			}
		}
		sort.Strings(files)
	} else {
		files = append(files, pf.File())
	}
	return append(files,
		pf.MetadataPath(),
		pf.OverridePath(),
		pf.CountriesPath(),
		pf.ExcludedCountriesPath(),
	), nil
}

// snapshotChecksum is the content checksum of a snapshot: the md5 recorded in
// its .dvc file, so that pulling it does not change it.
func snapshotChecksum(s *Snapshot) string {
	return "md5:" + s.Metadata.MD5
}
