package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seestox/predictor/models"
)

const metaFileName = "meta.json"

// Meta describes the last training run; stored next to the model files so
// stale registries are detectable.
type Meta struct {
	TrainedOn       string   `json:"trained_on"`
	Samples         int      `json:"samples"`
	FeatureCount    int      `json:"feature_count"`
	EncodingVersion int      `json:"encoding_version"`
	ModelNames      []string `json:"model_names"`
}

// SaveModels writes each model as <name>.json plus the meta record.
func SaveModels(dir string, trained map[string]*LinearModel, samples, featureCount, encodingVersion int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &models.PersistenceError{Op: "create model dir", Err: err}
	}

	names := make([]string, 0, len(trained))
	for name, model := range trained {
		data, err := json.MarshalIndent(model, "", "  ")
		if err != nil {
			return &models.PersistenceError{Op: "encode model " + name, Err: err}
		}
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			return &models.PersistenceError{Op: "save model " + name, Err: err}
		}
		names = append(names, name)
	}

	meta := Meta{
		TrainedOn:       time.Now().Format(time.RFC3339),
		Samples:         samples,
		FeatureCount:    featureCount,
		EncodingVersion: encodingVersion,
		ModelNames:      names,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &models.PersistenceError{Op: "encode model meta", Err: err}
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0o644); err != nil {
		return &models.PersistenceError{Op: "save model meta", Err: err}
	}
	return nil
}

// LoadModels reads every persisted model in the directory. Unreadable files
// are skipped; a missing directory is an empty registry, not an error.
func LoadModels(dir string) (map[string]*LinearModel, Meta, error) {
	loaded := make(map[string]*LinearModel)
	var meta Meta

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return loaded, meta, nil
		}
		return nil, meta, &models.PersistenceError{Op: "read model dir", Err: err}
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if e.Name() == metaFileName {
			_ = json.Unmarshal(data, &meta)
			continue
		}
		var model LinearModel
		if err := json.Unmarshal(data, &model); err != nil {
			continue
		}
		loaded[strings.TrimSuffix(e.Name(), ".json")] = &model
	}
	return loaded, meta, nil
}
