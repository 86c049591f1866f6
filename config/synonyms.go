package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maslennikov-ig/MC-2-sub003/preprocess"
)

// LoadSynonyms 读取 YAML 同义词表：
//
//	lessons.exercise_type:
//	  "case-study": case_study
//	  "cs": case_study
//	difficulty:
//	  "easy": beginner
//
// 字段键可以是去掉数组下标的点路径，也可以是叶子字段名。
// path 为空时返回 nil 表。
func LoadSynonyms(path string) (preprocess.Synonyms, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var table preprocess.Synonyms
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
	}
	for field, aliases := range table {
		for alias, canonical := range aliases {
			if canonical == "" {
				return nil, fmt.Errorf("synonyms %s: alias %q has an empty canonical value", field, alias)
			}
		}
	}
	return table, nil
}
