package source

import (
	"strings"
)

// FindCoordinate returns the coordinate variable of v called name.
// Dimension coordinates are searched before the auxiliary coordinates
// listed in v's "coordinates" attribute. ok is false when v has no such
// coordinate, which callers treat as an ordinary outcome.
func FindCoordinate(ds *Dataset, v *Variable, name string) (coord *Variable, ok bool) {
	for _, candidate := range candidates(ds, v) {
		if matchesCoordinate(candidate, name) {
			return candidate, true
		}
	}
	return nil, false
}

func candidates(ds *Dataset, v *Variable) []*Variable {
	seen := make(map[string]bool)
	var out []*Variable

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if cv, ok := ds.Variable(name); ok {
			out = append(out, cv)
		}
	}

	for _, d := range v.Dimensions {
		add(d)
	}
	for _, c := range v.CoordinateNames() {
		add(c)
	}
	return out
}

// matchesCoordinate accepts "time", numbered variants such as "time_1" or
// "time0", and any variable whose standard_name is name. Cell bounds never
// match.
func matchesCoordinate(cv *Variable, name string) bool {
	if strings.HasSuffix(cv.Name, "_bnds") || strings.HasSuffix(cv.Name, "_bounds") {
		return false
	}
	if cv.Name == name {
		return true
	}
	if sn, ok := cv.StringAttribute("standard_name"); ok && sn == name {
		return true
	}
	if !strings.HasPrefix(cv.Name, name) {
		return false
	}
	suffix := strings.TrimPrefix(cv.Name, name)
	return strings.Trim(suffix, "_0123456789") == "" && strings.Trim(suffix, "_") != ""
}
