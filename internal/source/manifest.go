package source

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bidsmapper/internal/errors"
)

// Manifest is the on-disk list of source files handed over by a header reader.
type Manifest struct {
	Files []File `yaml:"files" json:"files"`
}

// LoadManifest reads a YAML (or JSON) manifest of source files.
func LoadManifest(path string) ([]File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	return ParseManifest(data)
}

// ParseManifest parses manifest data. Both a bare list of files and a mapping
// with a "files" key are accepted.
func ParseManifest(data []byte) ([]File, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest")
	}

	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]

	var files []File

	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&files); err != nil {
			return nil, errors.Wrap(err, "failed to decode manifest files")
		}
	case yaml.MappingNode:
		var m Manifest
		if err := root.Decode(&m); err != nil {
			return nil, errors.Wrap(err, "failed to decode manifest")
		}

		files = m.Files
	default:
		return nil, errors.Newf("manifest must be a list or a mapping, got %v", root.Kind)
	}

	for i := range files {
		if files[i].Path == "" {
			return nil, errors.Newf("manifest entry %d has no path", i)
		}

		if files[i].Attributes == nil {
			files[i].Attributes = Attributes{}
		}
	}

	return files, nil
}

// ScanSidecars walks root for *.json sidecar files (as written next to images
// by converters) and returns one File per sidecar. The file path is the
// sidecar path without its extension. Results are in lexical order.
func ScanSidecars(root string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read sidecar %s", path)
		}

		attrs := Attributes{}
		if err := json.Unmarshal(data, &attrs); err != nil {
			return errors.Wrapf(err, "failed to parse sidecar %s", path)
		}

		files = append(files, File{
			Path:       strings.TrimSuffix(path, filepath.Ext(path)),
			Attributes: attrs,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
