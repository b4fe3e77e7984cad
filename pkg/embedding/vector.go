package embedding

import (
	"gonum.org/v1/gonum/floats"
)

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero magnitude have similarity 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}

	cos := floats.Dot(a, b) / (na * nb)
	switch {
	case cos > 1:
		return 1
	case cos < -1:
		return -1
	}
	return cos
}

// Normalize returns a unit-length copy of v. A zero vector is returned as a copy.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	norm := floats.Norm(out, 2)
	if norm == 0 {
		return out
	}
	floats.Scale(1/norm, out)
	return out
}

// Centroid returns the weighted mean (a*wa + b*wb) / (wa + wb). It is the
// running mean of an entity's linked embeddings when wa counts the records
// already folded into a. A missing side yields a copy of the other.
func Centroid(a []float64, wa float64, b []float64, wb float64) []float64 {
	switch {
	case len(a) == 0 || wa <= 0:
		return append([]float64(nil), b...)
	case len(b) == 0 || wb <= 0 || len(a) != len(b):
		return append([]float64(nil), a...)
	}

	out := make([]float64, len(a))
	floats.AddScaled(out, wa, a)
	floats.AddScaled(out, wb, b)
	floats.Scale(1/(wa+wb), out)
	return out
}
