package search

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moviesearch/movies-etl/pkg/content"
)

//go:embed schemes.json
var defaultSchemes []byte

// ErrUnknownScheme is returned when no index template exists for an index.
var ErrUnknownScheme = errors.New("unknown index scheme")

// Schemes maps a scheme name (film_scheme, person_scheme, genre_scheme) to the
// index creation body sent to Elasticsearch.
type Schemes map[string]json.RawMessage

// LoadSchemes reads index templates from path, or the built-in ones when path is empty.
// Files ending in .yaml or .yml are accepted next to JSON.
func LoadSchemes(path string) (Schemes, error) {
	data := defaultSchemes
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schemes file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return parseYAMLSchemes(data)
		}
	}

	var s Schemes
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schemes: %w", err)
	}
	return s, nil
}

// ForIndex returns the creation body for index.
func (s Schemes) ForIndex(index string) (json.RawMessage, error) {
	entity, ok := content.EntityForIndex(index)
	if !ok {
		return nil, fmt.Errorf("%w: no entity for index %q", ErrUnknownScheme, index)
	}
	body, ok := s[entity.Scheme()]
	if !ok || len(body) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, entity.Scheme())
	}
	return body, nil
}

func parseYAMLSchemes(data []byte) (Schemes, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schemes: %w", err)
	}
	s := make(Schemes, len(raw))
	for name, body := range raw {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scheme %q: %w", name, err)
		}
		s[name] = encoded
	}
	return s, nil
}
