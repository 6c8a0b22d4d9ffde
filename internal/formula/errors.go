package formula

import "errors"

// Error taxonomy for formula validation and evaluation. Validation failures
// block persistence of the offending field; evaluation failures are contained
// per field/per record and surface as a nil cell value.
var (
	ErrSyntax              = errors.New("syntax error")
	ErrCircularDependency  = errors.New("circular dependency")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrTypeCoercion        = errors.New("type coercion error")
)
