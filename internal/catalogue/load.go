package catalogue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// schemaExts lists the definition file extensions Load reads.
var schemaExts = []string{".yaml", ".yml", ".json", ".jsonc"}

// Load reads every schema definition file in dir (non-recursive) and builds
// the schema map. A file may hold one schema or a list of schemas. Files are
// read in name order so error messages are stable.
func Load(dir string) (types.SchemaMap, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema dir: %w", err)
	}

	var defs []*types.Schema
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(schemaExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		fileDefs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return Build(defs)
}

// LoadFile parses one definition file. JSON files may contain comments and
// trailing commas.
func LoadFile(path string) ([]*types.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err := decodeYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return defs, nil
	default:
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		defs, err := decodeJSON(std)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return defs, nil
	}
}

func decodeYAML(data []byte) ([]*types.Schema, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var defs []*types.Schema
		if err := node.Decode(&defs); err != nil {
			return nil, err
		}
		return defs, nil
	}
	var def types.Schema
	if err := node.Decode(&def); err != nil {
		return nil, err
	}
	return []*types.Schema{&def}, nil
}

func decodeJSON(data []byte) ([]*types.Schema, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var defs []*types.Schema
		if err := json.Unmarshal(data, &defs); err != nil {
			return nil, err
		}
		return defs, nil
	}
	var def types.Schema
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return []*types.Schema{&def}, nil
}
