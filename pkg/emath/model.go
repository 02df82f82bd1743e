package emath

import(
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotEnoughData is returned by Model.Fit when the matches cannot
// determine the model (no matches, or zero total weight).
var ErrNotEnoughData = errors.New("not enough data to fit model")

// A Match pairs a point P in a model's local space with the point Q it
// should map to.
type Match struct {
	P, Q   []float64
	Weight float64
}

// A Model is a parametric transform from a tile's local space into
// mosaic space. Only translations are implemented.
type Model interface {
	NumDims() int
	Apply(p []float64) []float64
	ApplyInverse(p []float64) []float64
	// Fit sets the parameters that minimise the weighted squared distance
	// between Apply(m.P) and m.Q over all matches.
	Fit(matches []Match) error
	Params() []float64
	Copy() Model
	String() string
}

type TranslationModel struct {
	T []float64
}

func NewTranslationModel(t ...float64) *TranslationModel {
	return &TranslationModel{T: append([]float64(nil), t...)}
}

func (m *TranslationModel)NumDims() int      { return len(m.T) }
func (m *TranslationModel)Params() []float64 { return append([]float64(nil), m.T...) }
func (m *TranslationModel)Copy() Model       { return NewTranslationModel(m.T...) }

func (m *TranslationModel)Apply(p []float64) []float64 {
	out := make([]float64, len(m.T))
	for d := range m.T {
		out[d] = p[d] + m.T[d]
	}
	return out
}

func (m *TranslationModel)ApplyInverse(p []float64) []float64 {
	out := make([]float64, len(m.T))
	for d := range m.T {
		out[d] = p[d] - m.T[d]
	}
	return out
}

// Fit computes the weighted mean of (Q - P).
func (m *TranslationModel)Fit(matches []Match) error {
	if len(matches) == 0 {
		return ErrNotEnoughData
	}

	sum := make([]float64, len(m.T))
	wSum := 0.0
	for _, match := range matches {
		for d := range sum {
			sum[d] += match.Weight * (match.Q[d] - match.P[d])
		}
		wSum += match.Weight
	}
	if wSum <= 0 {
		return ErrNotEnoughData
	}

	for d := range sum {
		t := sum[d] / wSum
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return errors.Errorf("translation fit: non-finite parameter on axis %d", d)
		}
		m.T[d] = t
	}
	return nil
}

func (m *TranslationModel)String() string {
	strs := make([]string, len(m.T))
	for d, t := range m.T {
		strs[d] = fmt.Sprintf("%.3f", t)
	}
	return "Translation(" + strings.Join(strs, ", ") + ")"
}

// Distance is the euclidean distance between two points.
func Distance(a, b []float64) float64 {
	sum := 0.0
	for d := range a {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
