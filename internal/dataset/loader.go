package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory discovers and loads all dataset definition files from a directory
func LoadFromDirectory(dirPath string) ([]DatasetWithFile, []ValidationError) {
	var datasets []DatasetWithFile
	var errors []ValidationError

	files, err := discoverYAMLFiles(dirPath)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	for _, file := range files {
		ds, err := parseYAMLFile(file)
		if err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Message: fmt.Sprintf("failed to parse YAML: %v", err),
			})
			continue
		}
		datasets = append(datasets, DatasetWithFile{
			Dataset: ds,
			File:    file,
		})
	}

	return datasets, errors
}

// discoverYAMLFiles finds all *.yaml and *.yml files in a directory
func discoverYAMLFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// parseYAMLFile parses a single YAML file into a Dataset struct
func parseYAMLFile(filePath string) (*Dataset, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, err
	}

	return &ds, nil
}
