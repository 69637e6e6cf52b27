package nxfile

import (
	hdf5 "github.com/sbinet/go-hdf5"
	"gonum.org/v1/gonum/mat"
)

// WriteProjections persists the advanced muon detector's pulse-shape
// projector/basis matrices under instrument/projections, written once as
// fixed-size datasets rather than kept as in-memory fields, since this
// engine has no further use for them once recorded.
func (w *Writer) WriteProjections(projectors, basis *mat.Dense) error {
	if w.instrument == nil {
		return nil
	}
	g, err := createGroup(w.instrument, "projections", "NXcollection")
	if err != nil {
		return err
	}
	if err := writeMatrix(g, "projectors", projectors); err != nil {
		return err
	}
	return writeMatrix(g, "basis", basis)
}

func writeMatrix(g *hdf5.Group, name string, m *mat.Dense) error {
	rows, cols := m.Dims()
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = m.At(i, j)
		}
	}
	sp, err := hdf5.CreateSimpleDataspace([]uint{uint(rows), uint(cols)}, nil)
	if err != nil {
		return pathErr("dataspace", name, err)
	}
	defer sp.Close()
	ds, err := g.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, sp)
	if err != nil {
		return pathErr("create-dataset", name, err)
	}
	defer ds.Close()
	if err := ds.Write(&data); err != nil {
		return pathErr("write", name, err)
	}
	return nil
}
