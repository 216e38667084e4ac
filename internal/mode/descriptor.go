package mode

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TaskDescriptor is the canonical task file written by the task tracker.
// JSON is accepted as a subset of YAML.
type TaskDescriptor struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Mode  string `yaml:"mode" json:"mode"`
}

// LoadDescriptor reads the descriptor at path. A missing file yields
// (nil, nil).
func LoadDescriptor(path string) (*TaskDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading task descriptor: %w", err)
	}

	var d TaskDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing task descriptor %s: %w", path, err)
	}
	return &d, nil
}
