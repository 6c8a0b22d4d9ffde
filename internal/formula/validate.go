package formula

import (
	"fmt"
	"strings"

	"github.com/okovacs/pulseboard/internal/dataset"
)

// Result is the outcome of validating a formula
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// aggregation functions accepted in aggregation-kind formulas
var aggregationFns = map[string]bool{
	"SUM": true, "AVG": true, "COUNT": true, "MIN": true, "MAX": true,
}

// date units accepted in date_diff formulas
var dateUnits = map[string]float64{
	"minutes": 1.0 / 60,
	"hours":   1,
	"days":    24,
	"weeks":   24 * 7,
	"months":  24 * 30.4375,
	"years":   24 * 365.25,
}

// Validate checks a formula's syntax for its declared kind and, for
// cross-field references, rejects formulas that would introduce a cycle in
// the dataset's calculated-field dependency graph. The candidate's edited
// formula is substituted for its previously saved one before the cycle walk,
// so an edit that closes a cycle is caught before persistence.
func Validate(formulaStr string, kind dataset.FormulaType, existing []dataset.CalculatedField, selfSlug string) Result {
	tokens, err := Tokenize(formulaStr)
	if err != nil {
		return Result{Valid: false, Error: err.Error()}
	}
	if len(tokens) == 0 {
		return Result{Valid: false, Error: "empty formula"}
	}

	switch kind {
	case dataset.FormulaExpression:
		err = checkArithmetic(tokens)
	case dataset.FormulaAggregation:
		_, err = parseAggregation(tokens)
	case dataset.FormulaDateDiff:
		_, err = parseDateDiff(tokens)
	case dataset.FormulaConditional:
		err = checkConditional(tokens)
	default:
		err = fmt.Errorf("unknown formula type %q", kind)
	}
	if err != nil {
		return Result{Valid: false, Error: err.Error()}
	}

	if cycle := findCycle(existing, selfSlug, formulaStr); cycle != nil {
		return Result{
			Valid: false,
			Error: fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")),
		}
	}

	return Result{Valid: true}
}

// ValidateDataset validates every active calculated field in a dataset,
// including references to fields that exist nowhere in the dataset.
func ValidateDataset(file string, ds *dataset.Dataset) []dataset.ValidationError {
	var errors []dataset.ValidationError

	known := make(map[string]bool)
	for _, f := range ds.Spec.Fields {
		known[f.Slug] = true
	}
	for _, cf := range ds.Spec.CalculatedFields {
		known[cf.Slug] = true
	}

	for i, cf := range ds.Spec.CalculatedFields {
		if !cf.IsActive {
			continue
		}

		path := fmt.Sprintf("spec.calculatedFields[%d].formula", i)
		res := Validate(cf.Formula, cf.FormulaType, ds.Spec.CalculatedFields, cf.Slug)
		if !res.Valid {
			errors = append(errors, dataset.ValidationError{File: file, Path: path, Message: res.Error})
			continue
		}

		tokens, err := Tokenize(cf.Formula)
		if err != nil {
			continue
		}
		for _, ref := range References(tokens) {
			if !known[ref] {
				errors = append(errors, dataset.ValidationError{
					File:    file,
					Path:    path,
					Message: fmt.Sprintf("reference to unknown field %q", ref),
				})
			}
		}
	}

	return errors
}

// checkArithmetic validates an expression-kind token stream: numbers, field
// identifiers, + - * / and parentheses only, in a well-formed sequence.
func checkArithmetic(tokens []Token) error {
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty formula", ErrSyntax)
	}

	parenCount := 0
	var prev *Token

	for i := range tokens {
		tok := &tokens[i]

		switch tok.Type {
		case TokenNumber, TokenIdent:
			if tok.Type == TokenIdent && keywords[strings.ToLower(tok.Value)] {
				return fmt.Errorf("%w: keyword %q not allowed in expression", ErrSyntax, tok.Value)
			}
			if prev != nil && (prev.Type == TokenNumber || prev.Type == TokenIdent || prev.Type == TokenRParen) {
				return fmt.Errorf("%w: consecutive values at position %d", ErrSyntax, tok.Pos)
			}
		case TokenOperator:
			if !isArithmeticOp(tok.Value) {
				return fmt.Errorf("%w: operator %q not allowed in expression", ErrSyntax, tok.Value)
			}
			if prev == nil || prev.Type == TokenOperator || prev.Type == TokenLParen {
				return fmt.Errorf("%w: misplaced operator %q at position %d", ErrSyntax, tok.Value, tok.Pos)
			}
		case TokenLParen:
			parenCount++
			if prev != nil && (prev.Type == TokenNumber || prev.Type == TokenIdent || prev.Type == TokenRParen) {
				return fmt.Errorf("%w: unexpected \"(\" at position %d", ErrSyntax, tok.Pos)
			}
		case TokenRParen:
			parenCount--
			if parenCount < 0 {
				return fmt.Errorf("%w: unmatched \")\" at position %d", ErrSyntax, tok.Pos)
			}
			if prev == nil || prev.Type == TokenOperator || prev.Type == TokenLParen {
				return fmt.Errorf("%w: unexpected \")\" at position %d", ErrSyntax, tok.Pos)
			}
		default:
			return fmt.Errorf("%w: token %q not allowed in expression", ErrSyntax, tok.Value)
		}

		prev = tok
	}

	if parenCount != 0 {
		return fmt.Errorf("%w: unbalanced parentheses", ErrSyntax)
	}
	if prev.Type == TokenOperator {
		return fmt.Errorf("%w: formula ends with operator %q", ErrSyntax, prev.Value)
	}

	return nil
}

// aggregationSpec is the parsed form of an aggregation formula:
// FN(field) [WHERE field op value]
type aggregationSpec struct {
	Fn    string
	Field string
	Where []dataset.FilterCondition
}

// parseAggregation parses formulas like "SUM(amount)" or
// "SUM(amount) WHERE status == 'completed'".
func parseAggregation(tokens []Token) (*aggregationSpec, error) {
	if len(tokens) < 4 {
		return nil, fmt.Errorf("%w: aggregation must be FN(field)", ErrSyntax)
	}

	fn := strings.ToUpper(tokens[0].Value)
	if tokens[0].Type != TokenIdent || !aggregationFns[fn] {
		return nil, fmt.Errorf("%w: unknown aggregation function %q", ErrSyntax, tokens[0].Value)
	}
	if tokens[1].Type != TokenLParen || tokens[2].Type != TokenIdent || tokens[3].Type != TokenRParen {
		return nil, fmt.Errorf("%w: aggregation must be FN(field)", ErrSyntax)
	}

	spec := &aggregationSpec{Fn: fn, Field: tokens[2].Value}

	rest := tokens[4:]
	if len(rest) == 0 {
		return spec, nil
	}

	// optional filter clause: WHERE field op value
	if len(rest) != 4 || rest[0].Type != TokenIdent || !strings.EqualFold(rest[0].Value, "where") {
		return nil, fmt.Errorf("%w: unexpected tokens after aggregation", ErrSyntax)
	}
	if rest[1].Type != TokenIdent {
		return nil, fmt.Errorf("%w: filter clause must name a field", ErrSyntax)
	}

	var op dataset.Operator
	switch rest[2].Value {
	case "==":
		op = dataset.OpEquals
	case "!=":
		op = dataset.OpNotEquals
	default:
		return nil, fmt.Errorf("%w: filter clause operator must be == or !=", ErrSyntax)
	}

	var value any
	switch rest[3].Type {
	case TokenString:
		value = rest[3].Value
	case TokenNumber:
		n, err := dataset.CoerceNumber(rest[3].Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		value = n
	case TokenIdent:
		switch strings.ToLower(rest[3].Value) {
		case "true":
			value = true
		case "false":
			value = false
		default:
			return nil, fmt.Errorf("%w: filter clause value must be a literal", ErrSyntax)
		}
	default:
		return nil, fmt.Errorf("%w: filter clause value must be a literal", ErrSyntax)
	}

	spec.Where = []dataset.FilterCondition{{Field: rest[1].Value, Operator: op, Value: value}}
	return spec, nil
}

// dateDiffSpec is the parsed form of DATE_DIFF(end, start, unit)
type dateDiffSpec struct {
	Left  Token
	Right Token
	Unit  string
}

// parseDateDiff parses formulas like "DATE_DIFF(checkout_date, checkin_date, days)"
func parseDateDiff(tokens []Token) (*dateDiffSpec, error) {
	if len(tokens) != 8 ||
		tokens[0].Type != TokenIdent || !strings.EqualFold(tokens[0].Value, "date_diff") ||
		tokens[1].Type != TokenLParen ||
		tokens[3].Type != TokenComma ||
		tokens[5].Type != TokenComma ||
		tokens[6].Type != TokenIdent ||
		tokens[7].Type != TokenRParen {
		return nil, fmt.Errorf("%w: date_diff must be DATE_DIFF(end, start, unit)", ErrSyntax)
	}

	for _, operand := range []Token{tokens[2], tokens[4]} {
		switch operand.Type {
		case TokenIdent, TokenString, TokenNumber:
		default:
			return nil, fmt.Errorf("%w: date_diff operand must be a field or literal", ErrSyntax)
		}
	}

	unit := strings.ToLower(tokens[6].Value)
	if _, ok := dateUnits[unit]; !ok {
		return nil, fmt.Errorf("%w: unknown date unit %q", ErrSyntax, tokens[6].Value)
	}

	return &dateDiffSpec{Left: tokens[2], Right: tokens[4], Unit: unit}, nil
}

// checkConditional validates "cond ? then : else" where cond is a single
// comparison over operands and each branch is an operand or arithmetic
// expression.
func checkConditional(tokens []Token) error {
	cond, thenToks, elseToks, err := splitConditional(tokens)
	if err != nil {
		return err
	}

	left, _, right, err := splitComparison(cond)
	if err != nil {
		return err
	}

	for _, part := range [][]Token{left, right, thenToks, elseToks} {
		if err := checkOperandExpr(part); err != nil {
			return err
		}
	}

	return nil
}

// splitConditional splits at the top-level "?" and ":"
func splitConditional(tokens []Token) (cond, thenToks, elseToks []Token, err error) {
	depth := 0
	q, c := -1, -1
	for i, tok := range tokens {
		switch tok.Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenQuestion:
			if depth == 0 && q < 0 {
				q = i
			}
		case TokenColon:
			if depth == 0 && q >= 0 && c < 0 {
				c = i
			}
		}
	}
	if q < 0 || c < 0 || c < q {
		return nil, nil, nil, fmt.Errorf("%w: conditional must be cond ? then : else", ErrSyntax)
	}
	cond, thenToks, elseToks = tokens[:q], tokens[q+1:c], tokens[c+1:]
	if len(cond) == 0 || len(thenToks) == 0 || len(elseToks) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: conditional must be cond ? then : else", ErrSyntax)
	}
	return cond, thenToks, elseToks, nil
}

// splitComparison splits a condition at its single top-level comparison operator
func splitComparison(tokens []Token) (left []Token, op string, right []Token, err error) {
	depth := 0
	at := -1
	for i, tok := range tokens {
		switch tok.Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenOperator:
			if depth == 0 && isComparisonOp(tok.Value) {
				if at >= 0 {
					return nil, "", nil, fmt.Errorf("%w: multiple comparison operators in condition", ErrSyntax)
				}
				at = i
			}
		}
	}
	if at < 0 {
		return nil, "", nil, fmt.Errorf("%w: condition needs a comparison operator", ErrSyntax)
	}
	left, op, right = tokens[:at], tokens[at].Value, tokens[at+1:]
	if len(left) == 0 || len(right) == 0 {
		return nil, "", nil, fmt.Errorf("%w: comparison is missing an operand", ErrSyntax)
	}
	return left, op, right, nil
}

// checkOperandExpr validates a branch/operand: a string literal, or an
// arithmetic expression over numbers and field references.
func checkOperandExpr(tokens []Token) error {
	if len(tokens) == 1 && tokens[0].Type == TokenString {
		return nil
	}
	return checkArithmetic(tokens)
}

func isArithmeticOp(op string) bool {
	return op == "+" || op == "-" || op == "*" || op == "/"
}

func isComparisonOp(op string) bool {
	switch op {
	case "==", "!=", ">", "<", ">=", "<=":
		return true
	}
	return false
}
