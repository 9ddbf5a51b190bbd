// Package emotion maps prosodic features and transcript text to a
// probability distribution over a fixed label set, and fuses the two
// branches with a weighted sum. The rule-based classifier is a baseline:
// any replacement must return the same Distribution contract.
package emotion

import "math"

// Label is one of the six fixed emotion classes.
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Excited Label = "excited"
	Calm    Label = "calm"
)

// Labels lists every class in canonical order.
var Labels = []Label{Neutral, Happy, Sad, Angry, Excited, Calm}

// Distribution assigns a non-negative weight to each label. After
// Normalize the weights sum to 1 within 1e-6.
type Distribution map[Label]float64

// NewDistribution returns a zero-weight distribution over all labels.
func NewDistribution() Distribution {
	d := make(Distribution, len(Labels))
	for _, l := range Labels {
		d[l] = 0
	}
	return d
}

// Normalize rescales weights to sum to 1. A near-zero total collapses to
// the uniform distribution so callers never divide by zero.
func (d Distribution) Normalize() Distribution {
	var total float64
	for _, v := range d {
		total += v
	}
	out := make(Distribution, len(Labels))
	if total < 1e-9 {
		u := 1.0 / float64(len(Labels))
		for _, l := range Labels {
			out[l] = u
		}
		return out
	}
	for k, v := range d {
		out[k] = v / total
	}
	return out
}

// Best resolves the distribution to its arg-max label and that label's
// weight rounded to 4 decimal places.
func (d Distribution) Best() (Label, float64) {
	best := Neutral
	bestV := math.Inf(-1)
	for _, l := range Labels {
		if v, ok := d[l]; ok && v > bestV {
			best, bestV = l, v
		}
	}
	if math.IsInf(bestV, -1) {
		return Neutral, 0
	}
	return best, math.Round(bestV*10000) / 10000
}
