package dataset

// Dataset represents a parsed dataset definition
type Dataset struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

// Metadata contains dataset metadata
type Metadata struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Owner       string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Spec contains the dataset specification
type Spec struct {
	DataSource       DataSource        `yaml:"dataSource" json:"dataSource"`
	Fields           []Field           `yaml:"fields" json:"fields"`
	CalculatedFields []CalculatedField `yaml:"calculatedFields,omitempty" json:"calculatedFields,omitempty"`
	Metrics          []MetricDefinition `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// FieldType identifies the scalar type of a raw dataset field
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// Field is a raw (stored, not derived) dataset column
type Field struct {
	Slug string    `yaml:"slug" json:"slug"`
	Name string    `yaml:"name,omitempty" json:"name,omitempty"`
	Type FieldType `yaml:"type" json:"type"`
}

// FormulaType identifies the grammar of a calculated field's formula
type FormulaType string

const (
	FormulaExpression  FormulaType = "expression"
	FormulaAggregation FormulaType = "aggregation"
	FormulaDateDiff    FormulaType = "date_diff"
	FormulaConditional FormulaType = "conditional"
)

// RefreshMode controls when a calculated field is recomputed
type RefreshMode string

const (
	RefreshRealtime RefreshMode = "realtime"
	RefreshPeriodic RefreshMode = "periodic"
)

// CalculatedField is a derived dataset column
type CalculatedField struct {
	Slug            string      `yaml:"slug" json:"slug"`
	Name            string      `yaml:"name,omitempty" json:"name,omitempty"`
	FormulaType     FormulaType `yaml:"formulaType" json:"formulaType"`
	Formula         string      `yaml:"formula" json:"formula"`
	TimeScope       string      `yaml:"timeScope,omitempty" json:"timeScope,omitempty"`
	RefreshMode     RefreshMode `yaml:"refreshMode,omitempty" json:"refreshMode,omitempty"`
	RefreshInterval string      `yaml:"refreshInterval,omitempty" json:"refreshInterval,omitempty"`
	IsActive        bool        `yaml:"isActive" json:"isActive"`
}

// MetricFormula identifies how a metric value is derived from its matches
type MetricFormula string

const (
	MetricCount      MetricFormula = "count"
	MetricSum        MetricFormula = "sum"
	MetricPercentage MetricFormula = "percentage"
)

// DataSource names the record batch a metric or dataset reads from
type DataSource string

const (
	SourceEvents    DataSource = "events"
	SourcePayments  DataSource = "payments"
	SourcePCFFields DataSource = "pcf_fields"
)

// MetricDefinition is a declarative dashboard metric
type MetricDefinition struct {
	ID                    string            `yaml:"id" json:"id"`
	Name                  string            `yaml:"name,omitempty" json:"name,omitempty"`
	FormulaType           MetricFormula     `yaml:"formulaType" json:"formulaType"`
	DataSource            DataSource        `yaml:"dataSource" json:"dataSource"`
	NumeratorConditions   []FilterCondition `yaml:"numeratorConditions,omitempty" json:"numeratorConditions,omitempty"`
	DenominatorConditions []FilterCondition `yaml:"denominatorConditions,omitempty" json:"denominatorConditions,omitempty"`
	NumeratorField        string            `yaml:"numeratorField,omitempty" json:"numeratorField,omitempty"`
	Currency              string            `yaml:"currency,omitempty" json:"currency,omitempty"`
	Window                string            `yaml:"window,omitempty" json:"window,omitempty"`
	RefreshInterval       string            `yaml:"refreshInterval,omitempty" json:"refreshInterval,omitempty"`
	IncludeNoShows        bool              `yaml:"includeNoShows" json:"includeNoShows"`
	IncludeCancels        bool              `yaml:"includeCancels" json:"includeCancels"`
	IncludeReschedules    bool              `yaml:"includeReschedules" json:"includeReschedules"`
	ExcludeOverduePCF     bool              `yaml:"excludeOverduePCF" json:"excludeOverduePCF"`
	IsActive              bool              `yaml:"isActive" json:"isActive"`
}

// Operator is a filter condition comparison operator
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpIn        Operator = "in"
)

// FilterCondition is a single field/operator/value predicate.
// Lists of conditions combine with AND semantics; an empty list matches all.
type FilterCondition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value" json:"value"`
}

// DatasetWithFile pairs a dataset with its source file path
type DatasetWithFile struct {
	Dataset *Dataset
	File    string
}

// ValidationError represents a validation error for a specific file
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}
