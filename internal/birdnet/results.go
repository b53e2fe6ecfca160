package birdnet

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Prediction is one scored label from the classifier.
type Prediction struct {
	Label      string
	Confidence float32
}

// customSigmoid applies a sigmoid function with sensitivity adjustment to a value.
func customSigmoid(x, sensitivity float64) float64 {
	return 1.0 / (1.0 + math.Exp(-sensitivity*x))
}

// applySigmoidToPredictions applies the sigmoid function to a slice of raw
// model outputs.
func applySigmoidToPredictions(predictions []float32, sensitivity float64) []float32 {
	confidence := make([]float32, len(predictions))
	for i, pred := range predictions {
		confidence[i] = float32(customSigmoid(float64(pred), sensitivity))
	}
	return confidence
}

// pairLabelsAndConfidence pairs labels with their corresponding confidence values.
func pairLabelsAndConfidence(labels []string, preds []float32) ([]Prediction, error) {
	if len(labels) != len(preds) {
		return nil, fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(labels), len(preds))
	}

	results := make([]Prediction, len(labels))
	for i, label := range labels {
		results[i] = Prediction{Label: label, Confidence: preds[i]}
	}
	return results, nil
}

// sortPredictions sorts by descending confidence, keeping label order for ties.
func sortPredictions(preds []Prediction) {
	slices.SortStableFunc(preds, func(a, b Prediction) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}

// topK trims sorted predictions to at most k entries; k <= 0 keeps all.
func topK(preds []Prediction, k int) []Prediction {
	if k > 0 && len(preds) > k {
		return preds[:k]
	}
	return preds
}

// scoreLogits turns one row of raw model output into the top-k predictions.
func scoreLogits(labels []string, logits []float32, sensitivity float64, k int) ([]Prediction, error) {
	results, err := pairLabelsAndConfidence(labels, applySigmoidToPredictions(logits, sensitivity))
	if err != nil {
		return nil, err
	}
	sortPredictions(results)
	return topK(results, k), nil
}
