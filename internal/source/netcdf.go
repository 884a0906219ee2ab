package source

import (
	"context"
	"fmt"
	"os"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"forest/internal/models"
)

// NetCDFReader reads NetCDF classic and NetCDF-4 files from disk.
// Values are loaded for coordinate-like variables only: scalars,
// one-dimensional arrays, and anything named as a dimension or listed in
// a "coordinates" attribute. Diagnostic payloads are never read.
type NetCDFReader struct{}

// NewNetCDFReader creates a reader.
func NewNetCDFReader() *NetCDFReader {
	return &NetCDFReader{}
}

// Read opens path and returns its metadata. A missing file is an I/O
// error; a file that cannot be decoded is malformed.
func (r *NetCDFReader) Read(ctx context.Context, path string) (*Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	group, err := netcdf.Open(path)
	if err != nil {
		return nil, &models.MalformedSourceError{Path: path, Reason: "not a readable NetCDF file", Err: err}
	}
	defer group.Close()

	type header struct {
		name   string
		getter api.VarGetter
		attrs  map[string]interface{}
	}

	names := group.ListVariables()
	headers := make([]header, 0, len(names))
	wanted := make(map[string]bool)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vg, err := group.GetVarGetter(name)
		if err != nil {
			return nil, &models.MalformedSourceError{Path: path, Variable: name, Reason: "unreadable variable", Err: err}
		}
		attrs := attributeMap(vg.Attributes())
		headers = append(headers, header{name: name, getter: vg, attrs: attrs})

		for _, d := range vg.Dimensions() {
			wanted[d] = true
		}
		tmp := &Variable{Attributes: attrs}
		for _, c := range tmp.CoordinateNames() {
			wanted[c] = true
		}
	}

	ds := NewDataset(path)
	for _, h := range headers {
		v := &Variable{
			Name:       h.name,
			Dimensions: append([]string(nil), h.getter.Dimensions()...),
			Attributes: h.attrs,
		}
		if len(v.Dimensions) <= 1 || wanted[v.Name] {
			values, err := h.getter.Values()
			if err != nil {
				return nil, &models.MalformedSourceError{Path: path, Variable: h.name, Reason: "unreadable values", Err: err}
			}
			v.Values = values
		}
		ds.Add(v)
	}
	return ds, nil
}

func attributeMap(am api.AttributeMap) map[string]interface{} {
	out := make(map[string]interface{})
	if am == nil {
		return out
	}
	for _, key := range am.Keys() {
		if val, ok := am.Get(key); ok {
			out[key] = val
		}
	}
	return out
}
