package script

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tagexpressions "github.com/cucumber/tag-expressions/go/v6"

	"github.com/teranos/longtake"
)

// Extensions the loader understands.
const (
	FeatureExtension = ".feature"
	YAMLExtension    = ".yaml"
	YMLExtension     = ".yml"
)

// IsScenarioFile reports whether path has a loadable extension.
func IsScenarioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case FeatureExtension, YAMLExtension, YMLExtension:
		return true
	}
	return false
}

// LoadFile loads the scenarios in one file, dispatching on its extension,
// and keeps those matching the tag expression. An empty expression keeps all.
// Validation problems come back as *Errors.
func LoadFile(path, tags string) ([]longtake.Scenario, error) {
	scenarios, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return Filter(scenarios, tags)
}

func loadFile(path string) ([]longtake.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case FeatureExtension:
		scenarios, issues := ParseFeature(bytes.NewReader(data), path)
		if len(issues) > 0 {
			return nil, &Errors{File: path, Issues: issues}
		}
		return scenarios, nil
	case YAMLExtension, YMLExtension:
		doc, issues := Validate(data)
		if len(issues) > 0 {
			return nil, &Errors{File: path, Issues: issues}
		}
		return doc.Build(path), nil
	default:
		return nil, fmt.Errorf("%s: unsupported scenario file type %q", path, filepath.Ext(path))
	}
}

// LoadPaths loads every file named, walking directories for scenario files
// in lexical order. Scenario names must be unique across all files since
// each gets its own evidence folder.
func LoadPaths(paths []string, tags string) ([]longtake.Scenario, error) {
	files, err := FindFiles(paths)
	if err != nil {
		return nil, err
	}

	var all []longtake.Scenario
	origin := make(map[string]string)
	for _, file := range files {
		scenarios, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		for _, sc := range scenarios {
			if prev, dup := origin[sc.Slug()]; dup {
				return nil, fmt.Errorf("%s: scenario %q collides with a scenario in %s", file, sc.Name(), prev)
			}
			origin[sc.Slug()] = file
		}
		all = append(all, scenarios...)
	}
	return Filter(all, tags)
}

// FindFiles expands directories into the scenario files below them. Files
// named explicitly are kept whatever their extension.
func FindFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsScenarioFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// Filter keeps the scenarios whose tags satisfy a cucumber tag expression
// such as "@smoke and not @slow".
func Filter(scenarios []longtake.Scenario, expression string) ([]longtake.Scenario, error) {
	if strings.TrimSpace(expression) == "" {
		return scenarios, nil
	}
	evaluator, err := parseTags(expression)
	if err != nil {
		return nil, err
	}

	var kept []longtake.Scenario
	for _, sc := range scenarios {
		if evaluator.Evaluate(sc.Tags()) {
			kept = append(kept, sc)
		}
	}
	return kept, nil
}

// parseTags parses a tag expression. The parser panics on some malformed
// input (a dangling operator), so that is turned into an error as well.
func parseTags(expression string) (evaluator tagexpressions.Evaluatable, err error) {
	defer func() {
		if r := recover(); r != nil {
			evaluator = nil
			err = fmt.Errorf("tag expression %q: %v", expression, r)
		}
	}()
	evaluator, err = tagexpressions.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("tag expression %q: %w", expression, err)
	}
	return evaluator, nil
}
