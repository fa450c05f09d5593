package kb

// KnowledgeBaseSpec holds the inputs for creating a vector knowledge base
// stored in an OpenSearch Serverless collection.
type KnowledgeBaseSpec struct {
	Name            string
	Description     string
	RoleName        string // bare role name; expanded to an ARN with the caller account
	RoleARN         string // takes precedence over RoleName
	EmbeddingModel  string
	CollectionID    string // collection id; expanded to an ARN with the caller account
	CollectionARN   string // takes precedence over CollectionID
	VectorIndexName string
}

// ChunkingSpec configures fixed-size chunking.
type ChunkingSpec struct {
	MaxTokens         int32
	OverlapPercentage int32
}

// DefaultChunking mirrors the provisioned data source.
func DefaultChunking() ChunkingSpec {
	return ChunkingSpec{MaxTokens: 300, OverlapPercentage: 20}
}

// DataSourceSpec holds the inputs for an S3 data source.
type DataSourceSpec struct {
	Name              string
	Description       string
	KnowledgeBaseID   string
	BucketName        string
	InclusionPrefixes []string
	Chunking          ChunkingSpec
}

// Summary is one row of a knowledge-base or data-source listing.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// CleanupTarget names every resource the cleanup operation removes.
type CleanupTarget struct {
	KnowledgeBaseID string
	DataSourceID    string
	IndexName       string
}
