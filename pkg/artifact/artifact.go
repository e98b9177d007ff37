// Package artifact packages a fitted regressor with the feature schema it was
// trained on, so the serving path can refuse a model that no longer matches
// the frame it would be asked to score.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/HatiCode/heatcast/pkg/features"
	"github.com/HatiCode/heatcast/pkg/models"
	"github.com/HatiCode/heatcast/pkg/search"
	"github.com/HatiCode/heatcast/pkg/storage"
)

// SchemaVersion is bumped whenever the artifact layout changes incompatibly.
const SchemaVersion = 1

// DefaultName is the artifact name used by the trainer and server.
const DefaultName = "heat_model"

// ErrModelUnavailable is returned when an artifact is missing, corrupt, or
// incompatible with the current feature set.
var ErrModelUnavailable = errors.New("model unavailable")

// Artifact is the persisted form of a trained model.
type Artifact struct {
	SchemaVersion int             `json:"schema_version"`
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	ModelKind     string          `json:"model_kind"`
	Model         json.RawMessage `json:"model"`

	FeatureNames []string `json:"feature_names"`
	Lags         []int    `json:"lags"`
	Horizon      int      `json:"horizon"`
	TrainingRows int      `json:"training_rows"`

	Params   models.Params  `json:"params"`
	Seed     uint64         `json:"seed"`
	CVMean   float64        `json:"cv_mean_mae"`
	CVStd    float64        `json:"cv_std_mae"`
	Trials   []search.Trial `json:"trials"`
	Baseline float64        `json:"baseline_mae,omitempty"`
}

// New builds an artifact from a search result and the frame it ran on.
func New(res *search.Result, frame *features.Frame, seed uint64, now time.Time) (*Artifact, error) {
	kind, data, err := models.Marshal(res.Model)
	if err != nil {
		return nil, err
	}

	a := &Artifact{
		SchemaVersion: SchemaVersion,
		CreatedAt:     now.UTC(),
		ModelKind:     kind,
		Model:         data,
		FeatureNames:  slices.Clone(frame.Names),
		Lags:          slices.Clone(frame.Lags),
		Horizon:       frame.Horizon,
		TrainingRows:  frame.Len(),
		Params:        res.Best.Params,
		Seed:          seed,
		CVMean:        res.Best.MeanMAE,
		CVStd:         res.Best.StdMAE,
		Trials:        res.Trials,
	}

	sum := sha256.Sum256(data)
	a.ID = fmt.Sprintf("%s-%s-%s", kind, a.CreatedAt.Format("20060102T150405Z"), hex.EncodeToString(sum[:4]))
	return a, nil
}

// Encode serializes the artifact as JSON.
func (a *Artifact) Encode() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// Decode parses an artifact. Any failure wraps ErrModelUnavailable.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrModelUnavailable, err)
	}
	if a.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: artifact schema version %d, expected %d",
			ErrModelUnavailable, a.SchemaVersion, SchemaVersion)
	}
	if len(a.FeatureNames) == 0 || len(a.Model) == 0 {
		return nil, fmt.Errorf("%w: artifact has no model or feature list", ErrModelUnavailable)
	}
	return &a, nil
}

// Options returns the synthesis options the model was trained with.
func (a *Artifact) Options() features.Options {
	return features.Options{Lags: slices.Clone(a.Lags), Horizon: a.Horizon}
}

// Regressor restores the fitted model.
func (a *Artifact) Regressor() (models.Regressor, error) {
	r, err := models.Unmarshal(a.ModelKind, a.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return r, nil
}

// CheckSchema verifies that frame has exactly the trained feature columns, in
// order, and the same horizon.
func (a *Artifact) CheckSchema(frame *features.Frame) error {
	if frame.Horizon != a.Horizon {
		return fmt.Errorf("%w: artifact horizon %d, frame horizon %d", ErrModelUnavailable, a.Horizon, frame.Horizon)
	}
	if len(frame.Names) != len(a.FeatureNames) {
		return fmt.Errorf("%w: artifact has %d features, frame has %d",
			ErrModelUnavailable, len(a.FeatureNames), len(frame.Names))
	}
	for i, name := range a.FeatureNames {
		if frame.Names[i] != name {
			return fmt.Errorf("%w: feature %d is %q in artifact, %q in frame",
				ErrModelUnavailable, i, name, frame.Names[i])
		}
	}
	return nil
}

// Save encodes a and stores it under name.
func Save(ctx context.Context, store storage.Store, name string, a *Artifact) error {
	data, err := a.Encode()
	if err != nil {
		return err
	}
	if err := store.Put(ctx, storage.Record{Name: name, Data: data, StoredAt: a.CreatedAt}); err != nil {
		return fmt.Errorf("store artifact %q: %w", name, err)
	}
	return nil
}

// Load fetches and decodes the artifact called name. A missing artifact or a
// storage failure wraps ErrModelUnavailable.
func Load(ctx context.Context, store storage.Store, name string) (*Artifact, error) {
	rec, found, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", ErrModelUnavailable, name, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: artifact %q not found", ErrModelUnavailable, name)
	}
	return Decode(rec.Data)
}
