package filter

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// document is the JSON and TOML root. XML uses LogFilter itself as the root element.
type document struct {
	Filter LogFilter `json:"Filter" toml:"Filter"`
}

// Load reads a filter set; the codec is chosen by the file extension (.json, .xml or
// .toml). The loaded filters are compiled.
func Load(path string) (*LogFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter file: %w", err)
	}
	lf, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return lf, nil
}

// Decode parses data in the format named by ext.
func Decode(data []byte, ext string) (*LogFilter, error) {
	var lf LogFilter
	switch strings.ToLower(ext) {
	case ".json":
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		lf = doc.Filter
	case ".toml":
		var doc document
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		lf = doc.Filter
	case ".xml":
		if err := xml.Unmarshal(data, &lf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported filter format %q", ext)
	}
	if err := lf.Compile(); err != nil {
		return nil, err
	}
	return &lf, nil
}

// Save writes lf to path in the format chosen by its extension.
func Save(path string, lf *LogFilter) error {
	data, err := Encode(lf, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to encode filter: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write filter file: %w", err)
	}
	return nil
}

func Encode(lf *LogFilter, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(document{Filter: *lf}, "", "  ")
	case ".toml":
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(document{Filter: *lf}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ".xml":
		data, err := xml.MarshalIndent(lf, "", "  ")
		if err != nil {
			return nil, err
		}
		return append([]byte(xml.Header), data...), nil
	default:
		return nil, fmt.Errorf("unsupported filter format %q", ext)
	}
}
