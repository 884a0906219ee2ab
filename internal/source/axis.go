package source

// ResolveAxis reports which storage dimension of v holds the coordinate
// called name: the zero-based position in v.Dimensions of the
// coordinate's (first) dimension. It returns nil when v has no such
// coordinate or when the coordinate is scalar and spans no dimension.
func ResolveAxis(ds *Dataset, v *Variable, name string) *int {
	cv, ok := FindCoordinate(ds, v, name)
	if !ok || len(cv.Dimensions) == 0 {
		return nil
	}

	dim := cv.Dimensions[0]
	for i, d := range v.Dimensions {
		if d == dim {
			axis := i
			return &axis
		}
	}
	return nil
}
