package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Validator handles dataset definition validation
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a new validator with the given schema file
func NewValidator(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDirectory loads and validates all dataset files in a directory.
// Formula- and dependency-level checks live in the formula package; this
// covers structure, duplicates, and window strings.
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	withFiles, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	if len(withFiles) == 0 {
		return allErrors
	}

	for _, df := range withFiles {
		schemaErrors := v.validateSchema(df.File, df.Dataset)
		allErrors = append(allErrors, schemaErrors...)
	}

	extraErrors := v.validateExtraRules(withFiles)
	allErrors = append(allErrors, extraErrors...)

	return allErrors
}

// validateSchema validates a single dataset against the JSON schema
func (v *Validator) validateSchema(file string, ds *Dataset) []ValidationError {
	var errors []ValidationError

	// Round-trip through YAML to get plain maps for schema validation
	yamlBytes, err := yaml.Marshal(ds)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to marshal dataset: %v", err),
		})
		return errors
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(yamlBytes, &jsonData); err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to convert to JSON: %v", err),
		})
		return errors
	}

	if err := v.schema.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errors = append(errors, extractSchemaErrors(file, validationErr)...)
		} else {
			errors = append(errors, ValidationError{
				File:    file,
				Message: err.Error(),
			})
		}
	}

	return errors
}

// extractSchemaErrors converts JSON schema validation errors to ValidationErrors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, ValidationError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// validateExtraRules applies additional validation rules beyond JSON schema
func (v *Validator) validateExtraRules(withFiles []DatasetWithFile) []ValidationError {
	var errors []ValidationError

	slugSeen := make(map[string]string)
	for _, df := range withFiles {
		slug := df.Dataset.Metadata.Slug
		if prevFile, exists := slugSeen[slug]; exists {
			errors = append(errors, ValidationError{
				File:    df.File,
				Path:    "metadata.slug",
				Message: fmt.Sprintf("duplicate slug %q (also in %s)", slug, filepath.Base(prevFile)),
			})
		} else {
			slugSeen[slug] = df.File
		}

		errors = append(errors, validateFieldSlugs(df.File, df.Dataset)...)
		errors = append(errors, validateWindows(df.File, df.Dataset)...)
		errors = append(errors, validateMetricShapes(df.File, df.Dataset)...)
	}

	return errors
}

// validateFieldSlugs checks that raw and calculated field slugs don't collide
func validateFieldSlugs(file string, ds *Dataset) []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, f := range ds.Spec.Fields {
		if seen[f.Slug] {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.fields[%d].slug", i),
				Message: fmt.Sprintf("duplicate field slug %q", f.Slug),
			})
		}
		seen[f.Slug] = true
	}
	for i, cf := range ds.Spec.CalculatedFields {
		if seen[cf.Slug] {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.calculatedFields[%d].slug", i),
				Message: fmt.Sprintf("duplicate field slug %q", cf.Slug),
			})
		}
		seen[cf.Slug] = true
	}

	return errors
}

// validateWindows checks time scopes and refresh intervals parse
func validateWindows(file string, ds *Dataset) []ValidationError {
	var errors []ValidationError

	for i, cf := range ds.Spec.CalculatedFields {
		if _, err := ParseWindow(cf.TimeScope); err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.calculatedFields[%d].timeScope", i),
				Message: err.Error(),
			})
		}
		if cf.RefreshMode == RefreshPeriodic && cf.RefreshInterval == "" {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.calculatedFields[%d].refreshInterval", i),
				Message: "periodic refresh mode requires a refresh interval",
			})
		}
		if cf.RefreshInterval != "" {
			if d, err := ParseWindow(cf.RefreshInterval); err != nil || d == 0 {
				errors = append(errors, ValidationError{
					File:    file,
					Path:    fmt.Sprintf("spec.calculatedFields[%d].refreshInterval", i),
					Message: fmt.Sprintf("invalid refresh interval: %s", cf.RefreshInterval),
				})
			}
		}
	}

	for i, m := range ds.Spec.Metrics {
		if _, err := ParseWindow(m.Window); err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.metrics[%d].window", i),
				Message: err.Error(),
			})
		}
		if m.RefreshInterval != "" {
			if d, err := ParseWindow(m.RefreshInterval); err != nil || d == 0 {
				errors = append(errors, ValidationError{
					File:    file,
					Path:    fmt.Sprintf("spec.metrics[%d].refreshInterval", i),
					Message: fmt.Sprintf("invalid refresh interval: %s", m.RefreshInterval),
				})
			}
		}
	}

	return errors
}

// validateMetricShapes checks per-formula metric requirements
func validateMetricShapes(file string, ds *Dataset) []ValidationError {
	var errors []ValidationError

	idSeen := make(map[string]bool)
	for i, m := range ds.Spec.Metrics {
		if idSeen[m.ID] {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.metrics[%d].id", i),
				Message: fmt.Sprintf("duplicate metric id %q", m.ID),
			})
		}
		idSeen[m.ID] = true

		switch m.FormulaType {
		case MetricCount, MetricPercentage:
			// no extra requirements
		case MetricSum:
			if m.NumeratorField == "" {
				errors = append(errors, ValidationError{
					File:    file,
					Path:    fmt.Sprintf("spec.metrics[%d].numeratorField", i),
					Message: "sum metrics require a numerator field",
				})
			}
		default:
			errors = append(errors, ValidationError{
				File:    file,
				Path:    fmt.Sprintf("spec.metrics[%d].formulaType", i),
				Message: fmt.Sprintf("unknown metric formula type %q", m.FormulaType),
			})
		}

		for j, c := range append(append([]FilterCondition{}, m.NumeratorConditions...), m.DenominatorConditions...) {
			switch c.Operator {
			case OpEquals, OpNotEquals, OpIn:
			default:
				errors = append(errors, ValidationError{
					File:    file,
					Path:    fmt.Sprintf("spec.metrics[%d].conditions[%d].operator", i, j),
					Message: fmt.Sprintf("unknown operator %q", c.Operator),
				})
			}
		}
	}

	return errors
}
