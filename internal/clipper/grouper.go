package clipper

import (
	"cmp"
	"slices"
)

// DetectionGroup is a padded time range covering one or more overlapping
// detections of the same species.
type DetectionGroup struct {
	ScientificName string
	CommonName     string
	Start          float64
	End            float64
	MaxConfidence  float64
	DetectionCount int
}

// Duration returns the group length in seconds.
func (g *DetectionGroup) Duration() float64 {
	return g.End - g.Start
}

// GroupDetections merges overlapping detections per species after widening
// each one by pre and post seconds. Starts are clamped at zero. Groups of
// one species never overlap and the result is sorted by start time.
func GroupDetections(dets []Detection, pre, post float64) []DetectionGroup {
	bySpecies := make(map[string][]Detection)
	var order []string
	for _, d := range dets {
		if _, ok := bySpecies[d.ScientificName]; !ok {
			order = append(order, d.ScientificName)
		}
		bySpecies[d.ScientificName] = append(bySpecies[d.ScientificName], d)
	}

	var groups []DetectionGroup
	for _, species := range order {
		groups = append(groups, mergeSpecies(bySpecies[species], pre, post)...)
	}

	slices.SortStableFunc(groups, func(a, b DetectionGroup) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return groups
}

func mergeSpecies(dets []Detection, pre, post float64) []DetectionGroup {
	slices.SortStableFunc(dets, func(a, b Detection) int {
		return cmp.Compare(a.Start, b.Start)
	})

	var groups []DetectionGroup
	var current *DetectionGroup
	for _, d := range dets {
		start := max(0, d.Start-pre)
		end := d.End + post

		if current != nil && current.Start <= end && start <= current.End {
			current.End = max(current.End, end)
			current.Start = min(current.Start, start)
			current.MaxConfidence = max(current.MaxConfidence, d.Confidence)
			current.DetectionCount++
			continue
		}

		if current != nil {
			groups = append(groups, *current)
		}
		current = &DetectionGroup{
			ScientificName: d.ScientificName,
			CommonName:     d.CommonName,
			Start:          start,
			End:            end,
			MaxConfidence:  d.Confidence,
			DetectionCount: 1,
		}
	}
	if current != nil {
		groups = append(groups, *current)
	}
	return groups
}
