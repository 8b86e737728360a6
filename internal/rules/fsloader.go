package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func isYAML(p string) bool {
	l := strings.ToLower(p)
	return strings.HasSuffix(l, ".yml") || strings.HasSuffix(l, ".yaml")
}

// LoadFile parses one rule file.
func LoadFile(path string) (RuleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, err
	}
	rs, err := LoadRuleYAML(b)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	rs.Source = path
	return rs, nil
}

// LoadDir walks root recursively and parses every .yml/.yaml file in
// lexical order. A file path is accepted too.
func LoadDir(root string) ([]RuleSet, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		rs, err := LoadFile(root)
		if err != nil {
			return nil, err
		}
		return []RuleSet{rs}, nil
	}

	var out []RuleSet
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		rs, err := LoadFile(p)
		if err != nil {
			return err
		}
		out = append(out, rs)
		return nil
	})
	return out, err
}
