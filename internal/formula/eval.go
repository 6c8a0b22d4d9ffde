package formula

import (
	"fmt"
	"strings"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/filter"
)

// Batch evaluates calculated fields over one in-memory record batch. It keeps
// the per-batch memo for aggregation-kind fields, so a Batch must not be
// reused across different record sets.
type Batch struct {
	calc    map[string]*dataset.CalculatedField
	records []dataset.Record
	aggMemo map[string]any
}

// CellError records a contained per-field/per-record evaluation failure
type CellError struct {
	Record int
	Field  string
	Err    error
}

// NewBatch creates an evaluation pass over records with the given calculated
// fields available for reference resolution. Inactive fields resolve as
// unknown references.
func NewBatch(fields []dataset.CalculatedField, records []dataset.Record) *Batch {
	calc := make(map[string]*dataset.CalculatedField, len(fields))
	for i := range fields {
		if fields[i].IsActive {
			calc[fields[i].Slug] = &fields[i]
		}
	}
	return &Batch{
		calc:    calc,
		records: records,
		aggMemo: make(map[string]any),
	}
}

// Evaluate computes one calculated field for one record of the batch.
// The result is a scalar (float64, string, bool) or nil; errors are tagged
// with the package sentinels and never abort other cells.
func (b *Batch) Evaluate(slug string, rec dataset.Record) (any, error) {
	f, ok := b.calc[slug]
	if !ok {
		return nil, fmt.Errorf("%w: no active calculated field %q", ErrUnresolvedReference, slug)
	}
	return b.evalField(f, rec, map[string]bool{})
}

// EvaluateAll returns new records with every active calculated field appended
// as a derived column. A failing cell is set to nil and reported; remaining
// fields and records still evaluate.
func (b *Batch) EvaluateAll() ([]dataset.Record, []CellError) {
	out := make([]dataset.Record, len(b.records))
	var cellErrs []CellError

	for i, rec := range b.records {
		derived := rec.Clone()
		for slug, f := range b.calc {
			v, err := b.evalField(f, rec, map[string]bool{})
			if err != nil {
				cellErrs = append(cellErrs, CellError{Record: i, Field: slug, Err: err})
				derived[slug] = nil
				continue
			}
			derived[slug] = v
		}
		out[i] = derived
	}

	return out, cellErrs
}

// evalField dispatches on the formula kind. onPath is the recursion guard:
// validation should have rejected cycles already, but callers can bypass the
// validator, so a revisited slug fails instead of recursing forever.
func (b *Batch) evalField(f *dataset.CalculatedField, rec dataset.Record, onPath map[string]bool) (any, error) {
	if onPath[f.Slug] {
		return nil, fmt.Errorf("%w: %s references itself", ErrCircularDependency, f.Slug)
	}
	onPath[f.Slug] = true
	defer delete(onPath, f.Slug)

	tokens, err := Tokenize(f.Formula)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty formula for %s", ErrSyntax, f.Slug)
	}

	switch f.FormulaType {
	case dataset.FormulaExpression:
		return b.evalArithmetic(tokens, rec, onPath)
	case dataset.FormulaAggregation:
		return b.evalAggregation(f.Slug, tokens, onPath)
	case dataset.FormulaDateDiff:
		return b.evalDateDiff(tokens, rec, onPath)
	case dataset.FormulaConditional:
		return b.evalConditional(tokens, rec, onPath)
	default:
		return nil, fmt.Errorf("%w: unknown formula type %q", ErrSyntax, f.FormulaType)
	}
}

// resolve looks an identifier up in the record, falling back to recursive
// evaluation when it names another calculated field.
func (b *Batch) resolve(name string, rec dataset.Record, onPath map[string]bool) (any, error) {
	if v, ok := rec[name]; ok {
		return v, nil
	}
	if f, ok := b.calc[name]; ok {
		return b.evalField(f, rec, onPath)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolvedReference, name)
}

// resolveNumber resolves an identifier and coerces it for arithmetic
func (b *Batch) resolveNumber(name string, rec dataset.Record, onPath map[string]bool) (float64, error) {
	v, err := b.resolve(name, rec, onPath)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("%w: %s is null", ErrTypeCoercion, name)
	}
	n, err := dataset.CoerceNumber(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrTypeCoercion, name, err)
	}
	return n, nil
}

// ---- expression ----

// exprParser evaluates an arithmetic token stream with * / binding tighter
// than + -, and parentheses grouping. Division by zero yields 0 so a single
// bad cell never blanks a dashboard.
type exprParser struct {
	tokens  []Token
	pos     int
	resolve func(name string) (float64, error)
}

func (b *Batch) evalArithmetic(tokens []Token, rec dataset.Record, onPath map[string]bool) (float64, error) {
	if err := checkArithmetic(tokens); err != nil {
		return 0, err
	}

	p := &exprParser{
		tokens: tokens,
		resolve: func(name string) (float64, error) {
			return b.resolveNumber(name, rec, onPath)
		},
	}

	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("%w: unexpected token %q", ErrSyntax, p.tokens[p.pos].Value)
	}
	return v, nil
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenOperator {
		op := p.tokens[p.pos].Value
		if op != "+" && op != "-" {
			break
		}
		p.pos++

		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenOperator {
		op := p.tokens[p.pos].Value
		if op != "*" && op != "/" {
			break
		}
		p.pos++

		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
		} else if right == 0 {
			left = 0
		} else {
			left /= right
		}
	}
	return left, nil
}

func (p *exprParser) parseFactor() (float64, error) {
	if p.pos >= len(p.tokens) {
		return 0, fmt.Errorf("%w: unexpected end of formula", ErrSyntax)
	}

	tok := p.tokens[p.pos]
	switch tok.Type {
	case TokenNumber:
		p.pos++
		return dataset.CoerceNumber(tok.Value)
	case TokenIdent:
		p.pos++
		return p.resolve(tok.Value)
	case TokenLParen:
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRParen {
			return 0, fmt.Errorf("%w: expected \")\"", ErrSyntax)
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("%w: unexpected token %q", ErrSyntax, tok.Value)
	}
}

// ---- aggregation ----

// evalAggregation applies the named function over the whole batch, not the
// single record, so its result is identical for every record. The memo keeps
// one computation per slug per batch; it never outlives the Batch.
func (b *Batch) evalAggregation(slug string, tokens []Token, onPath map[string]bool) (any, error) {
	if v, ok := b.aggMemo[slug]; ok {
		return v, nil
	}

	spec, err := parseAggregation(tokens)
	if err != nil {
		return nil, err
	}

	scoped := filter.Apply(b.records, spec.Where)

	var values []float64
	var present int
	for _, rec := range scoped {
		v, err := b.resolve(spec.Field, rec, onPath)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		present++
		if spec.Fn == "COUNT" {
			// COUNT needs presence only, not numeric coercion
			continue
		}
		n, err := dataset.CoerceNumber(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTypeCoercion, spec.Field, err)
		}
		values = append(values, n)
	}

	var result float64
	switch spec.Fn {
	case "COUNT":
		result = float64(present)
	case "SUM":
		for _, v := range values {
			result += v
		}
	case "AVG":
		if len(values) > 0 {
			var sum float64
			for _, v := range values {
				sum += v
			}
			result = sum / float64(len(values))
		}
	case "MIN":
		for i, v := range values {
			if i == 0 || v < result {
				result = v
			}
		}
	case "MAX":
		for i, v := range values {
			if i == 0 || v > result {
				result = v
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown aggregation function %q", ErrSyntax, spec.Fn)
	}

	b.aggMemo[slug] = result
	return result, nil
}

// ---- date_diff ----

// evalDateDiff returns the signed difference end-start in the requested unit.
// Unparsable dates yield nil, not an error.
func (b *Batch) evalDateDiff(tokens []Token, rec dataset.Record, onPath map[string]bool) (any, error) {
	spec, err := parseDateDiff(tokens)
	if err != nil {
		return nil, err
	}

	left, err := b.dateOperand(spec.Left, rec, onPath)
	if err != nil {
		return nil, err
	}
	right, err := b.dateOperand(spec.Right, rec, onPath)
	if err != nil {
		return nil, err
	}

	lt, lerr := dataset.ParseDate(left)
	rt, rerr := dataset.ParseDate(right)
	if lerr != nil || rerr != nil {
		return nil, nil
	}

	hours := lt.Sub(rt).Hours()
	return hours / dateUnits[spec.Unit], nil
}

func (b *Batch) dateOperand(tok Token, rec dataset.Record, onPath map[string]bool) (any, error) {
	switch tok.Type {
	case TokenIdent:
		return b.resolve(tok.Value, rec, onPath)
	case TokenString, TokenNumber:
		return tok.Value, nil
	default:
		return nil, fmt.Errorf("%w: bad date operand %q", ErrSyntax, tok.Value)
	}
}

// ---- conditional ----

// evalConditional evaluates the comparison first, then only the chosen branch
func (b *Batch) evalConditional(tokens []Token, rec dataset.Record, onPath map[string]bool) (any, error) {
	cond, thenToks, elseToks, err := splitConditional(tokens)
	if err != nil {
		return nil, err
	}
	left, op, right, err := splitComparison(cond)
	if err != nil {
		return nil, err
	}

	lv, err := b.evalOperandExpr(left, rec, onPath)
	if err != nil {
		return nil, err
	}
	rv, err := b.evalOperandExpr(right, rec, onPath)
	if err != nil {
		return nil, err
	}

	truth, err := compare(lv, rv, op)
	if err != nil {
		return nil, err
	}

	if truth {
		return b.evalOperandExpr(thenToks, rec, onPath)
	}
	return b.evalOperandExpr(elseToks, rec, onPath)
}

// evalOperandExpr evaluates an operand or branch: a string literal keeps its
// string value, a bare identifier keeps the referenced value's type, anything
// else is arithmetic.
func (b *Batch) evalOperandExpr(tokens []Token, rec dataset.Record, onPath map[string]bool) (any, error) {
	if len(tokens) == 1 {
		switch tokens[0].Type {
		case TokenString:
			return tokens[0].Value, nil
		case TokenIdent:
			return b.resolve(tokens[0].Value, rec, onPath)
		case TokenNumber:
			return dataset.CoerceNumber(tokens[0].Value)
		}
	}
	return b.evalArithmetic(tokens, rec, onPath)
}

// compare applies a comparison operator, numerically when both sides coerce
// to numbers, otherwise over the canonical string forms.
func compare(left, right any, op string) (bool, error) {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil, nil
		case "!=":
			return !(left == nil && right == nil), nil
		default:
			return false, nil
		}
	}

	ln, lerr := dataset.CoerceNumber(left)
	rn, rerr := dataset.CoerceNumber(right)
	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return ln == rn, nil
		case "!=":
			return ln != rn, nil
		case ">":
			return ln > rn, nil
		case "<":
			return ln < rn, nil
		case ">=":
			return ln >= rn, nil
		case "<=":
			return ln <= rn, nil
		}
	}

	ls, rs := dataset.CoerceString(left), dataset.CoerceString(right)
	switch op {
	case "==":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	case ">":
		return ls > rs, nil
	case "<":
		return ls < rs, nil
	case ">=":
		return ls >= rs, nil
	case "<=":
		return ls <= rs, nil
	}

	return false, fmt.Errorf("%w: unknown comparison operator %q", ErrSyntax, op)
}

// FormatCellErrors renders contained failures for logs
func FormatCellErrors(errs []CellError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("record %d field %s: %v", e.Record, e.Field, e.Err))
	}
	return strings.Join(parts, "; ")
}
