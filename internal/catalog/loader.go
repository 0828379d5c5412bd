package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader produces catalog data from an external source.
type Loader interface {
	Load(ctx context.Context) (Data, error)
}

// FileLoader reads catalog data from a YAML document.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(_ context.Context) (Data, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return Data{}, fmt.Errorf("catalog: read %s: %w", l.Path, err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes catalog data from YAML.
func ParseYAML(raw []byte) (Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return data, nil
}

// LoadSnapshot loads data through l and builds a validated snapshot.
func LoadSnapshot(ctx context.Context, l Loader) (*Snapshot, error) {
	data, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(data)
}
