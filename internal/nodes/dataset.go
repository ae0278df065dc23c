package nodes

import (
	"context"

	"rent360_assistant/internal/core"
	"rent360_assistant/internal/knowledge"
	"rent360_assistant/pkg"
)

// DatasetAcceptConfidence is the minimum Tier-1 confidence auto-accepted.
// Mid-band matches continue to the provider.
const DatasetAcceptConfidence = 0.8

// DatasetNode answers from the training dataset
type DatasetNode struct {
	dataset *knowledge.Dataset
}

// NewDatasetNode creates a new dataset tier
func NewDatasetNode(dataset *knowledge.Dataset) *DatasetNode {
	return &DatasetNode{dataset: dataset}
}

// Name returns the tier name
func (d *DatasetNode) Name() string {
	return "dataset"
}

// Attempt accepts a dataset match of high enough confidence
func (d *DatasetNode) Attempt(_ context.Context, turn *core.Turn) (core.TierResult, error) {
	match, ok := d.dataset.FindBestMatch(turn.Message.Text, turn.Message.Role)
	if !ok || match.Confidence < DatasetAcceptConfidence {
		return core.Continue(), nil
	}

	intent := match.Intent
	if intent == "" {
		intent = turn.Intent.Intent
	}
	return core.Accepted(pkg.ResponseEnvelope{
		Text:        match.Text,
		Confidence:  match.Confidence,
		Intent:      intent,
		Suggestions: d.dataset.Suggestions(turn.Message.Role),
	}), nil
}
