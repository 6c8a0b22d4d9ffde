package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/formula"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateDir := validateCmd.String("dir", "", "directory containing dataset YAML files")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateDir == "" {
			fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
			validateCmd.Usage()
			os.Exit(1)
		}
		os.Exit(runValidate(*validateDir))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: pulse <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate --dir <path>    Validate dataset YAML files in a directory")
	fmt.Println()
}

func runValidate(dirPath string) int {
	// Find schema file relative to the binary or in the current directory
	schemaPath := findSchemaFile()
	if schemaPath == "" {
		fmt.Fprintln(os.Stderr, "Error: could not find schemas/dataset_v1.json")
		return 1
	}

	// Create validator
	validator, err := dataset.NewValidator(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		return 1
	}

	// Schema and cross-field rules first, then formula and cycle checks
	errors := validator.ValidateDirectory(dirPath)

	withFiles, loadErrors := dataset.LoadFromDirectory(dirPath)
	errors = append(errors, loadErrors...)
	for _, wf := range withFiles {
		errors = append(errors, formula.ValidateDataset(wf.File, wf.Dataset)...)
	}

	if len(errors) == 0 {
		fmt.Println("✓ All dataset files are valid")
		return 0
	}

	// Group errors by file
	errorsByFile := make(map[string][]dataset.ValidationError)
	for _, err := range errors {
		errorsByFile[err.File] = append(errorsByFile[err.File], err)
	}

	// Print errors grouped by file
	var files []string
	for file := range errorsByFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Fprintf(os.Stderr, "✗ Validation failed with %d error(s):\n\n", len(errors))
	for _, file := range files {
		fileErrors := errorsByFile[file]
		for _, err := range fileErrors {
			if err.Path != "" {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(err.File), err.Path, err.Message)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(err.File), err.Message)
			}
		}
	}

	return 1
}

// findSchemaFile looks for the schema file in common locations
func findSchemaFile() string {
	candidates := []string{
		"schemas/dataset_v1.json",
		"../schemas/dataset_v1.json",
		"../../schemas/dataset_v1.json",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
