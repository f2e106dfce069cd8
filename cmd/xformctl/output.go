package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Lllllllleong/xformflow/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

func printValue(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output %q", format)
	}
}

// printTags keeps document order in both formats; a plain map would sort.
func printTags(w io.Writer, format string, tags models.TopLevelTags) error {
	if format != outputYAML {
		return printValue(w, format, tags)
	}
	node, err := tagsNode(tags)
	if err != nil {
		return err
	}
	return printValue(w, format, node)
}

func tagsNode(tags models.TopLevelTags) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, tv := range tags {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: tv.Name}
		value := &yaml.Node{}
		if err := value.Encode(tv.Value); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", tv.Name, err)
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}
