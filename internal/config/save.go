package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveKeys merges data into the config file at configPath.
// Dotted keys ("core.id") are expanded into nested mappings. Keys that are
// not touched keep their comments and formatting because the file is edited
// as a yaml.Node tree.
func SaveKeys(configPath string, data map[string]any) error {
	raw, err := os.ReadFile(configPath) //nolint:gosec // G304: config path chosen by the user
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config root must be a mapping")
	}

	if err := mergeNode(root, expandDotted(data)); err != nil {
		return err
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// mergeNode writes data into a mapping node, recursing into mappings that
// exist on both sides and replacing everything else.
func mergeNode(mapping *yaml.Node, data map[string]any) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := data[key]

		idx := -1
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == key {
				idx = i + 1
				break
			}
		}

		if sub, ok := value.(map[string]any); ok && idx >= 0 && mapping.Content[idx].Kind == yaml.MappingNode {
			if err := mergeNode(mapping.Content[idx], sub); err != nil {
				return err
			}
			continue
		}

		node := &yaml.Node{}
		if err := node.Encode(value); err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}

		if idx >= 0 {
			node.LineComment = mapping.Content[idx].LineComment
			mapping.Content[idx] = node
			continue
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			node,
		)
	}
	return nil
}

// expandDotted turns {"core.id": x} into {"core": {"id": x}}, merging
// siblings that share a prefix.
func expandDotted(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		if sub, ok := value.(map[string]any); ok {
			value = expandDotted(sub)
		}
		parts := strings.Split(key, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
		last := parts[len(parts)-1]
		if existing, ok := cur[last].(map[string]any); ok {
			if sub, ok := value.(map[string]any); ok {
				for k, v := range sub {
					existing[k] = v
				}
				continue
			}
		}
		cur[last] = value
	}
	return out
}

// writeAtomic writes to a temp file in the same directory, then renames.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".kiln.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
