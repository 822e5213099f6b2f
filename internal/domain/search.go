package domain

// Default search parameters, matching the pre-built Wikipedia index.
const (
	DefaultIndex         = "wikipedia_vector_index"
	DefaultVectorField   = "content_vector"
	DefaultK             = 5
	DefaultNumCandidates = 50
)

// KNNQuery is a k-nearest-neighbor request against the vector index.
type KNNQuery struct {
	Vector        []float32
	K             int
	NumCandidates int
}
