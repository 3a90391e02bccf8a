package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/Jihanvall/rfm-app/internal/cluster"
	"github.com/Jihanvall/rfm-app/internal/features"
	"github.com/Jihanvall/rfm-app/internal/store"
)

// ScalerKey and ModelKey name the two artifacts of a deployed model.
func ScalerKey(name string) string { return name + "/scaler" }

func ModelKey(name string) string { return name + "/kmeans" }

// Bundle is a deployable pair of scaler and k-means model.
type Bundle struct {
	Scaler *features.Scaler
	Model  *cluster.Model
}

// LoadBundle reads both artifacts of the named model. A missing artifact
// yields *ModelUnavailableError.
func LoadBundle(ctx context.Context, st store.ArtifactStore, name string) (*Bundle, error) {
	scalerData, err := loadArtifact(ctx, st, name, ScalerKey(name))
	if err != nil {
		return nil, err
	}
	modelData, err := loadArtifact(ctx, st, name, ModelKey(name))
	if err != nil {
		return nil, err
	}

	scaler, err := features.Unmarshal(scalerData)
	if err != nil {
		return nil, err
	}
	m, err := cluster.Unmarshal(modelData)
	if err != nil {
		return nil, err
	}
	if scaler.FitID != m.FitID {
		return nil, &ModelUnavailableError{
			Model:  name,
			Key:    ModelKey(name),
			Reason: fmt.Sprintf("scaler from fit %q does not match k-means model from fit %q", scaler.FitID, m.FitID),
		}
	}
	if len(scaler.Mean) != len(m.Centroids[0]) {
		return nil, eris.Errorf("pipeline: model %q scaler has %d features but centroids have %d",
			name, len(scaler.Mean), len(m.Centroids[0]))
	}
	return &Bundle{Scaler: scaler, Model: m}, nil
}

func loadArtifact(ctx context.Context, st store.ArtifactStore, name, key string) ([]byte, error) {
	data, err := st.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ModelUnavailableError{Model: name, Key: key}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load %s", key)
	}
	return data, nil
}

// SaveBundle writes the scaler and the model. Stores that implement
// store.BatchSaver write both in one transaction; elsewhere the scaler goes
// first and a half-written pair is caught by the fit id check in LoadBundle.
func SaveBundle(ctx context.Context, st store.ArtifactStore, name string, b *Bundle) error {
	scalerData, err := b.Scaler.Marshal()
	if err != nil {
		return err
	}
	modelData, err := b.Model.Marshal()
	if err != nil {
		return err
	}
	if batch, ok := st.(store.BatchSaver); ok {
		err := batch.SaveAll(ctx, []store.Artifact{
			{Key: ScalerKey(name), Data: scalerData},
			{Key: ModelKey(name), Data: modelData},
		})
		return eris.Wrapf(err, "pipeline: save model %s", name)
	}
	if err := st.Save(ctx, ScalerKey(name), scalerData); err != nil {
		return eris.Wrapf(err, "pipeline: save %s", ScalerKey(name))
	}
	if err := st.Save(ctx, ModelKey(name), modelData); err != nil {
		return eris.Wrapf(err, "pipeline: save %s", ModelKey(name))
	}
	return nil
}
