package myaudio

import (
	"fmt"

	"github.com/tphakala/birda/internal/errors"
)

// Resample converts samples from one rate to another using cubic
// interpolation. Equal rates return the input unchanged.
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, errors.New(fmt.Errorf("invalid sample rates: %d -> %d", fromRate, toRate)).
			Component("myaudio").
			Category(errors.CategoryResample).
			Context("from_rate", fromRate).
			Context("to_rate", toRate).
			Build()
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	ratio := float64(toRate) / float64(fromRate)
	newLength := int(float64(len(samples)) * ratio)
	resampled := make([]float32, newLength)

	// cubic interpolation needs four neighbours
	if len(samples) < 4 {
		for i := range resampled {
			resampled[i] = samples[min(int(float64(i)/ratio), len(samples)-1)]
		}
		return resampled, nil
	}

	lastIndex := len(samples) - 3
	for i := range newLength {
		origPos := float64(i) / ratio
		index := int(origPos)
		if index < 1 {
			index = 1
		} else if index > lastIndex {
			index = lastIndex
		}

		frac := float32(origPos - float64(index))

		y0, y1, y2, y3 := samples[index-1], samples[index], samples[index+1], samples[index+2]
		mu2 := frac * frac
		a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
		a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
		a2 := -0.5*y0 + 0.5*y2
		a3 := y1

		resampled[i] = a0*frac*mu2 + a1*mu2 + a2*frac + a3
	}

	return resampled, nil
}
