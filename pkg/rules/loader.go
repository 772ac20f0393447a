package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bundlescope/bundlescope/pkg/logging"
)

// collectionDoc is the on-disk shape of one rule collection document.
type collectionDoc struct {
	Collection string `json:"collection" yaml:"collection"`
	Rules      []Rule `json:"rules" yaml:"rules"`
}

// LoadCollections loads every rule collection document from a directory.
// Documents are read in sorted filename order so repeated loads produce
// the same collection ordering. A malformed document, a document with no
// rules array, or a rule with an invalid pattern is skipped with a
// diagnostic; none of these abort loading.
func LoadCollections(dir string) []Collection {
	logger := logging.GetLogger("rules.loader")

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug().Err(err).Str("dir", dir).Msg("Rules directory not readable")
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var collections []Collection
	for _, name := range names {
		path := filepath.Join(dir, name)
		doc, err := loadDocument(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Skipping malformed rule document")
			continue
		}
		if len(doc.Rules) == 0 {
			logger.Debug().Str("file", name).Msg("Skipping document: no rules array")
			continue
		}

		collName := doc.Collection
		if collName == "" {
			collName = strings.TrimSuffix(name, filepath.Ext(name))
		}

		coll := Collection{Name: collName}
		for _, rule := range doc.Rules {
			compiled, err := rule.Compile()
			if err != nil {
				logger.Warn().
					Err(err).
					Str("file", name).
					Str("rule", rule.ID).
					Msg("Skipping rule with invalid pattern")
				continue
			}
			coll.Rules = append(coll.Rules, CompiledRule{Rule: rule, Pattern: compiled})
		}
		if len(coll.Rules) == 0 {
			continue
		}

		logger.Debug().
			Str("collection", coll.Name).
			Int("rules", len(coll.Rules)).
			Msg("Loaded rule collection")
		collections = append(collections, coll)
	}

	return collections
}

func loadDocument(path string) (*collectionDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc collectionDoc
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
