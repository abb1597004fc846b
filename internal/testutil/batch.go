package testutil

// FixedBatchGenerator generates the same batch token every time.
//
// Unlike reconcile.FixedGenerator which returns tokens in sequence, this
// generator never runs out, which suits tests that submit an unknown number
// of batches.
//
// Thread-safety: FixedBatchGenerator is stateless and safe for concurrent use.
type FixedBatchGenerator struct {
	token string
}

// NewFixedBatchGenerator creates a new fixed batch token generator.
// If token is empty, Generate() returns "test-batch-default".
func NewFixedBatchGenerator(token string) *FixedBatchGenerator {
	if token == "" {
		token = "test-batch-default"
	}
	return &FixedBatchGenerator{token: token}
}

// Generate returns the fixed batch token.
func (g *FixedBatchGenerator) Generate() string {
	return g.token
}
