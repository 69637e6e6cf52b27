// Package nxfile writes the NeXus/HDF5 structure: resizable chunked
// datasets and NX_class-tagged groups, built append-slice by append-slice
// as messages arrive. A file's group tree is built lazily, with a
// headerWritten flag recording whether InitialiseNewNexusStructure has
// run, all on top of github.com/sbinet/go-hdf5.
package nxfile

import (
	"fmt"

	hdf5 "github.com/sbinet/go-hdf5"
)

// PathError annotates an HDF5 operation with the group/dataset path it
// failed against, the one dedicated wrapper type in this codebase.
type PathError struct {
	Path string
	Op   string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("nxfile: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

func pathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PathError{Path: path, Op: op, Err: err}
}

// chunkSize is the chunk length used for every resizable dataset this
// package creates. A single constant keeps every dataset's chunking
// policy uniform; there is no per-dataset tuning need in this pipeline.
const chunkSize = 1024

// Writer owns one run's open HDF5 file handle plus the NeXus group tree
// built under it. It is created empty by Create and populated lazily as
// InitialiseNewNexusStructure and subsequent dispatch calls arrive.
type Writer struct {
	file *hdf5.File
	path string

	entry        *hdf5.Group
	detectorData *eventDataset
	runlog       *logGroup
	selog        *logGroup
	periods      *hdf5.Group
	instrument   *hdf5.Group
	sample       *hdf5.Group

	headerWritten bool
}

// Create opens a new HDF5 file at path, truncating any existing file
// (spec: one file per run, created on InitialiseNewNexusStructure).
func Create(path string) (*Writer, error) {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, pathErr("create", path, err)
	}
	return &Writer{file: f, path: path}, nil
}

// Open reopens an existing .nxs file for the resume-on-startup path.
func Open(path string) (*Writer, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDWR)
	if err != nil {
		return nil, pathErr("open", path, err)
	}
	w := &Writer{file: f, path: path, headerWritten: true}
	if err := w.reopenGroups(); err != nil {
		return nil, err
	}
	return w, nil
}

// Close releases the underlying HDF5 handles.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	return pathErr("close", w.path, w.file.Close())
}

// HeaderWritten reports whether InitialiseNewNexusStructure has run.
func (w *Writer) HeaderWritten() bool { return w.headerWritten }

func setNXClass(g *hdf5.Group, path, class string) error {
	sp, err := hdf5.CreateScalarDataspace()
	if err != nil {
		return pathErr("attribute-dataspace", path, err)
	}
	defer sp.Close()
	attr, err := g.CreateAttribute("NX_class", hdf5.T_GO_STRING, sp)
	if err != nil {
		return pathErr("create-attribute", path, err)
	}
	defer attr.Close()
	if err := attr.Write(&class, hdf5.T_GO_STRING); err != nil {
		return pathErr("write-attribute", path, err)
	}
	return nil
}

func createGroup(parent *hdf5.Group, name, nxClass string) (*hdf5.Group, error) {
	g, err := parent.CreateGroup(name)
	if err != nil {
		return nil, pathErr("create-group", name, err)
	}
	if err := setNXClass(g, name, nxClass); err != nil {
		return nil, err
	}
	return g, nil
}

func createGroupInFile(f *hdf5.File, name, nxClass string) (*hdf5.Group, error) {
	g, err := f.CreateGroup(name)
	if err != nil {
		return nil, pathErr("create-group", name, err)
	}
	if err := setNXClass(g, name, nxClass); err != nil {
		return nil, err
	}
	return g, nil
}
