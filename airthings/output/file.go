package output

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings"
)

type Mode string

const (
	// Overwrite replaces whatever the file held with this run's readings.
	Overwrite Mode = "overwrite"
	// Merge keeps devices from earlier runs that were not read this time.
	Merge Mode = "merge"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Overwrite, Merge:
		return m, nil
	}
	return "", errors.Errorf("unknown output mode %q (allowed: %s, %s)", s, Overwrite, Merge)
}

// Load reads a document written by Write. A missing file yields an empty document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return doc, nil
}

// Save persists doc according to mode. In Merge mode an unreadable previous file
// is replaced rather than failing the run.
func Save(path string, doc *Document, mode Mode) error {
	if mode == Merge {
		prev, err := Load(path)
		if err != nil {
			log.Warnf("discarding previous output: %s", err)
			prev = NewDocument()
		}
		prev.Merge(doc)
		doc = prev
	}
	return Write(path, doc)
}

// Write replaces path with doc. The document goes to a temporary file in the same
// directory first and is renamed into place, so path never holds a partial document.
func Write(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errors.Wrapf(airthings.ErrOutputWrite, "failed to encode document: %s", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(airthings.ErrOutputWrite, "failed to create temporary file: %s", err)
	}
	tmpName := tmp.Name()
	fail := func(step string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(airthings.ErrOutputWrite, "failed to %s %s: %s", step, tmpName, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(airthings.ErrOutputWrite, "failed to rename into %s: %s", path, err)
	}

	log.WithField("path", path).Infof("wrote %d device(s)", doc.Len())
	return nil
}
