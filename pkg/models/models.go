// Package models locates trained model artifacts and their label lists.
//
// The training stage writes pairs of files into a models directory:
//
//	models/model_20250301_142210.onnx
//	models/model_20250301_142210.labels.json
//
// The timestamp in the name sorts lexically, so the newest model is the
// greatest name.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// Prefix is the file name prefix of every model artifact.
const Prefix = "model_"

// LabelsSuffix replaces the model extension to form the labels file name.
const LabelsSuffix = ".labels.json"

// stampLayout is the timestamp format embedded in artifact names.
const stampLayout = "20060102_150405"

// ErrNoModel is returned when a directory holds no model artifacts.
var ErrNoModel = errors.New("models: no model found")

// ConfigError reports an unusable model or labels file. It is fatal at startup.
type ConfigError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("models: %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Artifact is one model file and its companion labels file.
type Artifact struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	LabelsPath string    `json:"labels_path"`
	Created    time.Time `json:"created,omitempty"` // zero when the name carries no timestamp
}

// Labels loads the artifact's label list.
func (a Artifact) Labels() (vision.Labels, error) {
	return LoadLabels(a.LabelsPath)
}

func newArtifact(dir, name, ext string) Artifact {
	stem := strings.TrimSuffix(name, ext)
	a := Artifact{
		Name:       name,
		Path:       filepath.Join(dir, name),
		LabelsPath: filepath.Join(dir, stem+LabelsSuffix),
	}
	if t, err := time.ParseInLocation(stampLayout, strings.TrimPrefix(stem, Prefix), time.Local); err == nil {
		a.Created = t
	}
	return a
}

// List returns the artifacts in dir with the given extension, newest first.
func List(dir, ext string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, Prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		if strings.HasSuffix(name, LabelsSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]Artifact, len(names))
	for i, name := range names {
		out[i] = newArtifact(dir, name, ext)
	}
	return out, nil
}

// Latest returns the newest artifact in dir.
func Latest(dir, ext string) (Artifact, error) {
	all, err := List(dir, ext)
	if err != nil {
		return Artifact{}, err
	}
	if len(all) == 0 {
		return Artifact{}, &ConfigError{Path: dir, Err: ErrNoModel}
	}
	return all[0], nil
}

// Resolve returns the named artifact, or the latest one when name is empty.
// The model file and its labels file must both exist.
func Resolve(dir, name, ext string) (Artifact, error) {
	var a Artifact
	if name == "" {
		latest, err := Latest(dir, ext)
		if err != nil {
			return Artifact{}, err
		}
		a = latest
	} else {
		a = newArtifact(dir, filepath.Base(name), ext)
	}

	if _, err := os.Stat(a.Path); err != nil {
		return Artifact{}, &ConfigError{Path: a.Path, Err: err}
	}
	if _, err := os.Stat(a.LabelsPath); err != nil {
		return Artifact{}, &ConfigError{Path: a.LabelsPath, Err: err}
	}
	return a, nil
}

// LoadLabels reads a JSON array of label names.
func LoadLabels(path string) (vision.Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("malformed labels file: %w", err)}
	}

	labels, err := vision.NewLabels(names)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return labels, nil
}

// IsNotExist reports whether err is a ConfigError for a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
