package birdnet

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

// DefaultRangeThreshold is the minimum location score kept by the range filter.
const DefaultRangeThreshold = 0.01

// LocationScore is the meta model's occurrence score for one label.
type LocationScore struct {
	Label string
	Score float32
}

// RangeFilter predicts which species occur at a location and time of year.
type RangeFilter struct {
	labels    []string
	threshold float32
	cache     *gocache.Cache

	mu sync.Mutex
	rt *runtime
}

// NewRangeFilter loads the meta model. labels must be in the meta model's
// output order, which for BirdNET matches the classifier labels.
func NewRangeFilter(modelPath string, labels []string, threshold float32) (*RangeFilter, error) {
	if threshold <= 0 {
		threshold = DefaultRangeThreshold
	}
	rt, err := newRuntime(modelPath, 1, false, "range_filter")
	if err != nil {
		return nil, err
	}
	GetLogger().Info("range filter initialized",
		logger.String("model", modelPath),
		logger.Float64("threshold", float64(threshold)))
	return &RangeFilter{
		labels:    labels,
		threshold: threshold,
		cache:     gocache.New(6*time.Hour, 30*time.Minute),
		rt:        rt,
	}, nil
}

func locationKey(lat, lon float64, week int) string {
	return fmt.Sprintf("%.2f:%.2f:%d", lat, lon, week)
}

// Predict returns the labels scoring at least the threshold at lat/lon on
// month/day, sorted by descending score. Results are cached per rounded
// location and week.
func (f *RangeFilter) Predict(lat, lon float64, month, day int) ([]LocationScore, error) {
	week := DateToWeek(month, day)
	key := locationKey(lat, lon, week)
	if cached, ok := f.cache.Get(key); ok {
		if scores, ok := cached.([]LocationScore); ok {
			return scores, nil
		}
	}

	start := time.Now()
	scores, err := f.predict(lat, lon, week)
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryRangeFilter).
			Context("latitude", lat).
			Context("longitude", lon).
			Context("week", week).
			Timing("range-filter-invoke", time.Since(start)).
			Build()
	}
	f.cache.SetDefault(key, scores)

	GetLogger().Debug("range filter scores computed",
		logger.Float64("latitude", lat),
		logger.Float64("longitude", lon),
		logger.Int("week", week),
		logger.Int("species", len(scores)))
	return scores, nil
}

// PredictWeek is Predict for a BirdNET week number.
func (f *RangeFilter) PredictWeek(lat, lon float64, week int) ([]LocationScore, error) {
	month, day := WeekToDate(week)
	return f.Predict(lat, lon, month, day)
}

func (f *RangeFilter) predict(lat, lon float64, week int) ([]LocationScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rt == nil || f.rt.interpreter == nil {
		return nil, fmt.Errorf("range filter is closed")
	}
	input := f.rt.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	data := []float32{float32(lat), float32(lon), float32(week)}
	float32s := input.Float32s()
	if len(float32s) < len(data) {
		return nil, fmt.Errorf("input tensor does not have enough capacity: need %d, have %d", len(data), len(float32s))
	}
	copy(float32s, data)

	if status := f.rt.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := f.rt.interpreter.GetOutputTensor(0)
	return scoreLocations(f.labels, output.Float32s(), f.threshold), nil
}

// scoreLocations pairs meta model output with labels, keeping scores at or
// above threshold, highest first. Outputs beyond the label list are ignored.
func scoreLocations(labels []string, output []float32, threshold float32) []LocationScore {
	var scores []LocationScore
	for i, score := range output {
		if i >= len(labels) {
			break
		}
		if score >= threshold {
			scores = append(scores, LocationScore{Label: labels[i], Score: score})
		}
	}
	slices.SortStableFunc(scores, func(a, b LocationScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return scores
}

// Close releases the meta model.
func (f *RangeFilter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rt != nil {
		f.rt.delete()
		f.rt = nil
	}
}

// FilterPredictions keeps predictions whose label has a location score. With
// rerank, confidence is multiplied by the location score and the result is
// re-sorted by descending confidence.
func FilterPredictions(preds []Prediction, scores []LocationScore, rerank bool) []Prediction {
	byLabel := make(map[string]float32, len(scores))
	for _, s := range scores {
		byLabel[s.Label] = s.Score
	}

	kept := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		score, ok := byLabel[p.Label]
		if !ok {
			continue
		}
		if rerank {
			p.Confidence *= score
		}
		kept = append(kept, p)
	}
	if rerank {
		sortPredictions(kept)
	}
	return kept
}

// FilterBySpeciesList keeps predictions whose label is in the allowed set.
func FilterBySpeciesList(preds []Prediction, allowed map[string]struct{}) []Prediction {
	kept := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		if _, ok := allowed[p.Label]; ok {
			kept = append(kept, p)
		}
	}
	return kept
}
