package metric

// Breakdown exposes the raw numerator (and denominator, when one was
// computed) behind a metric value so the UI can show "123 / 456" without
// recomputation.
type Breakdown struct {
	Numerator   float64  `json:"numerator"`
	Denominator *float64 `json:"denominator,omitempty"`
}

// Value is a computed metric: a pre-rendered display string plus its
// breakdown. Values are produced fresh on every computation and never cached
// inside this package.
type Value struct {
	FormattedValue string    `json:"formattedValue"`
	Breakdown      Breakdown `json:"breakdown"`
}
