package nxfile

import (
	hdf5 "github.com/sbinet/go-hdf5"
)

// column is a 1-D resizable, chunked dataset that grows only by append:
// after Append(xs) the dataset's length increases by len(xs). Column
// is generic over the element kinds the log/event/alarm datasets need
// (signed and unsigned 8- to 64-bit integers, float32, float64, and
// string), avoiding one
// hand-written type per HDF5 scalar kind.
type column[T any] struct {
	ds   *hdf5.Dataset
	path string
	len  uint
	dtype *hdf5.Datatype
}

func newColumn[T any](parent *hdf5.Group, name string, dtype *hdf5.Datatype) (*column[T], error) {
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{0}, []uint{hdf5.UNLIMITED})
	if err != nil {
		return nil, pathErr("dataspace", name, err)
	}
	defer dataspace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, pathErr("proplist", name, err)
	}
	defer plist.Close()
	if err := plist.SetChunk([]uint{chunkSize}); err != nil {
		return nil, pathErr("set-chunk", name, err)
	}

	ds, err := parent.CreateDatasetWith(name, dtype, dataspace, plist)
	if err != nil {
		return nil, pathErr("create-dataset", name, err)
	}
	return &column[T]{ds: ds, path: name, dtype: dtype}, nil
}

func openColumn[T any](parent *hdf5.Group, name string, dtype *hdf5.Datatype) (*column[T], error) {
	ds, err := parent.OpenDataset(name)
	if err != nil {
		return nil, pathErr("open-dataset", name, err)
	}
	space := ds.Space()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, pathErr("extent-dims", name, err)
	}
	return &column[T]{ds: ds, path: name, dtype: dtype, len: dims[0]}, nil
}

// Append extends the dataset by len(xs) and writes xs into the new tail
// (spec's append_slice).
func (c *column[T]) Append(xs []T) error {
	if len(xs) == 0 {
		return nil
	}
	newLen := c.len + uint(len(xs))
	if err := c.ds.SetExtent([]uint{newLen}); err != nil {
		return pathErr("extend", c.path, err)
	}

	memSpace, err := hdf5.CreateSimpleDataspace([]uint{uint(len(xs))}, nil)
	if err != nil {
		return pathErr("mem-dataspace", c.path, err)
	}
	defer memSpace.Close()

	fileSpace := c.ds.Space()
	if err := fileSpace.SelectHyperslab([]uint{c.len}, nil, []uint{uint(len(xs))}, nil); err != nil {
		return pathErr("select-hyperslab", c.path, err)
	}

	if err := c.ds.WriteSubset(&xs, memSpace, fileSpace); err != nil {
		return pathErr("write-subset", c.path, err)
	}
	c.len = newLen
	return nil
}

// Len reports the dataset's current length.
func (c *column[T]) Len() uint { return c.len }

func (c *column[T]) Close() error {
	if c.ds == nil {
		return nil
	}
	return pathErr("close-dataset", c.path, c.ds.Close())
}
