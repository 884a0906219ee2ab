// Package source describes forecast files the way the indexer needs them:
// named variables with their dimensions, attributes and, for coordinate
// variables, their values. Datasets come from a Reader (NetCDF on disk) or
// are built in memory.
package source

import (
	"context"
	"strings"
	"time"
)

const (
	// ProvenanceAttribute marks a genuine forecast diagnostic, as opposed to
	// a dimension or coordinate variable.
	ProvenanceAttribute = "um_stash_source"
	// ReferenceTimeVariable holds the forecast initialisation time.
	ReferenceTimeVariable = "forecast_reference_time"

	TimeCoordinate     = "time"
	PressureCoordinate = "pressure"
)

// Reader loads the metadata of one file.
type Reader interface {
	Read(ctx context.Context, path string) (*Dataset, error)
}

// Variable is one named array of a dataset. Values is populated for
// coordinate-like variables only and holds a scalar or a slice of a
// numeric Go type.
type Variable struct {
	Name       string
	Dimensions []string
	Attributes map[string]interface{}
	Values     interface{}
}

// Attribute returns the named attribute.
func (v *Variable) Attribute(name string) (interface{}, bool) {
	val, ok := v.Attributes[name]
	return val, ok
}

// StringAttribute returns the named attribute when it is text.
func (v *Variable) StringAttribute(name string) (string, bool) {
	val, ok := v.Attributes[name]
	if !ok {
		return "", false
	}
	switch s := val.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

// CoordinateNames lists the auxiliary coordinates named by the
// "coordinates" attribute.
func (v *Variable) CoordinateNames() []string {
	s, ok := v.StringAttribute("coordinates")
	if !ok {
		return nil
	}
	return strings.Fields(s)
}

// IsDiagnostic reports whether v carries the provenance marker.
func (v *Variable) IsDiagnostic() bool {
	_, ok := v.Attributes[ProvenanceAttribute]
	return ok
}

// Dataset is the metadata of one forecast file.
type Dataset struct {
	Path      string
	variables []*Variable
	byName    map[string]*Variable
}

// NewDataset builds a dataset from variables, keeping their order.
func NewDataset(path string, variables ...*Variable) *Dataset {
	ds := &Dataset{
		Path:   path,
		byName: make(map[string]*Variable, len(variables)),
	}
	for _, v := range variables {
		ds.Add(v)
	}
	return ds
}

// Add appends v, replacing any earlier variable of the same name.
func (d *Dataset) Add(v *Variable) {
	if v.Attributes == nil {
		v.Attributes = map[string]interface{}{}
	}
	if _, exists := d.byName[v.Name]; exists {
		for i, old := range d.variables {
			if old.Name == v.Name {
				d.variables[i] = v
			}
		}
	} else {
		d.variables = append(d.variables, v)
	}
	d.byName[v.Name] = v
}

// Variable looks a variable up by name.
func (d *Dataset) Variable(name string) (*Variable, bool) {
	v, ok := d.byName[name]
	return v, ok
}

// Variables returns every variable in file order.
func (d *Dataset) Variables() []*Variable {
	return d.variables
}

// Diagnostics returns the variables carrying the provenance marker.
func (d *Dataset) Diagnostics() []*Variable {
	var out []*Variable
	for _, v := range d.variables {
		if v.IsDiagnostic() {
			out = append(out, v)
		}
	}
	return out
}

// ReferenceTime decodes the forecast reference time. A file without one
// yields nil and no error; one without usable units is malformed.
func (d *Dataset) ReferenceTime() (*time.Time, error) {
	v, ok := d.Variable(ReferenceTimeVariable)
	if !ok {
		return nil, nil
	}
	times, err := DecodeTimes(d.Path, v)
	if err != nil {
		return nil, err
	}
	if len(times) == 0 {
		return nil, nil
	}
	return &times[0], nil
}
