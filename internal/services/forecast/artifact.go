package forecast

import (
	"encoding/json"
	"fmt"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/ml"
)

// modelBlob is the model half of a persisted artifact pair.
type modelBlob struct {
	Version int                    `json:"version"`
	Schema  []string               `json:"schema"`
	Metrics models.TrainingMetrics `json:"metrics"`
	Forest  *ml.RandomForest       `json:"forest"`
}

const artifactVersion = 1

func encodeArtifact(m *trainedModel) (*models.ModelArtifact, error) {
	model, err := json.Marshal(modelBlob{
		Version: artifactVersion,
		Schema:  m.schema,
		Metrics: m.metrics,
		Forest:  m.forest,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	scaler, err := json.Marshal(m.scaler)
	if err != nil {
		return nil, fmt.Errorf("marshal scaler: %w", err)
	}
	return &models.ModelArtifact{Model: model, Scaler: scaler}, nil
}

func decodeArtifact(a *models.ModelArtifact) (*trainedModel, error) {
	if a == nil || len(a.Model) == 0 || len(a.Scaler) == 0 {
		return nil, models.ErrArtifactNotFound
	}
	var blob modelBlob
	if err := json.Unmarshal(a.Model, &blob); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	var scaler ml.StandardScaler
	if err := json.Unmarshal(a.Scaler, &scaler); err != nil {
		return nil, fmt.Errorf("unmarshal scaler: %w", err)
	}
	if blob.Version != artifactVersion {
		return nil, fmt.Errorf("artifact version %d, want %d", blob.Version, artifactVersion)
	}
	if blob.Forest == nil || len(blob.Forest.Trees) == 0 {
		return nil, fmt.Errorf("artifact has no trees")
	}
	width := len(blob.Schema)
	if width == 0 || blob.Forest.Features != width || len(blob.Forest.Importances) != width ||
		len(scaler.Mean) != width || len(scaler.Scale) != width {
		return nil, fmt.Errorf("artifact shape mismatch: schema %d, forest %d, scaler %d",
			width, blob.Forest.Features, len(scaler.Mean))
	}
	for t, tree := range blob.Forest.Trees {
		for i, nd := range tree.Nodes {
			if nd.Feature >= width || (nd.Feature >= 0 && (nd.Left <= i || nd.Right <= i ||
				nd.Left >= len(tree.Nodes) || nd.Right >= len(tree.Nodes))) {
				return nil, fmt.Errorf("tree %d node %d is malformed", t, i)
			}
		}
	}
	return &trainedModel{
		forest:  blob.Forest,
		scaler:  &scaler,
		schema:  blob.Schema,
		metrics: blob.Metrics,
	}, nil
}
