package kb

import "encoding/json"

// Field names shared by the vector index and the knowledge-base field mapping.
const (
	VectorField   = "vector"
	TextField     = "text"
	MetadataField = "text-metadata"
)

// IndexSchema describes the fixed k-NN index layout the knowledge base writes into.
type IndexSchema struct {
	Dimension      int
	Engine         string
	SpaceType      string
	EfConstruction int
	M              int
}

// DefaultIndexSchema matches the titan-embed-text-v1 embedding size.
func DefaultIndexSchema() IndexSchema {
	return IndexSchema{
		Dimension:      1536,
		Engine:         "faiss",
		SpaceType:      "innerproduct",
		EfConstruction: 256,
		M:              48,
	}
}

// Body renders the create-index request body.
func (s IndexSchema) Body() ([]byte, error) {
	body := map[string]any{
		"settings": map[string]any{
			"index.knn": "true",
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				VectorField: map[string]any{
					"type":      "knn_vector",
					"dimension": s.Dimension,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": s.SpaceType,
						"engine":     s.Engine,
						"parameters": map[string]any{
							"ef_construction": s.EfConstruction,
							"m":               s.M,
						},
					},
				},
				TextField:     map[string]any{"type": "text"},
				MetadataField: map[string]any{"type": "text"},
			},
		},
	}
	return json.Marshal(body)
}
