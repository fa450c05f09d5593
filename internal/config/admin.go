package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// AdminDefaults 是 kbadmin 命令的默认参数，可由 TOML 文件覆盖，再由命令行参数覆盖。
type AdminDefaults struct {
	BucketName        string `toml:"bucket_name"`
	DataDir           string `toml:"data_dir"`
	IndexName         string `toml:"index_name"`
	KnowledgeBaseName string `toml:"knowledge_base_name"`
	ExecutionRole     string `toml:"execution_role"`
	EmbeddingModel    string `toml:"embedding_model"`
	ModelID           string `toml:"model_id"`
	SearchText        string `toml:"search_text"`
	ChunkMaxTokens    int32  `toml:"chunk_max_tokens"`
	ChunkOverlap      int32  `toml:"chunk_overlap_percentage"`
	StackName         string `toml:"stack_name"`
}

// DefaultAdminDefaults 返回内置默认值。
func DefaultAdminDefaults() AdminDefaults {
	return AdminDefaults{
		BucketName:        "pdf-chat-kb-data-source",
		DataDir:           "data",
		IndexName:         "kb-docs",
		KnowledgeBaseName: "bedrock-kb-docs",
		ExecutionRole:     "kb-role-bedrock-execution",
		EmbeddingModel:    "amazon.titan-embed-text-v1",
		ModelID:           DefaultModelID,
		SearchText:        "What is Amazon Q?",
		ChunkMaxTokens:    300,
		ChunkOverlap:      20,
		StackName:         "KnowledgebaseStack",
	}
}

// LoadAdminDefaults 读取 TOML 文件并覆盖内置默认值。文件不存在时直接返回默认值。
func LoadAdminDefaults(path string) (AdminDefaults, error) {
	defaults := DefaultAdminDefaults()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("read admin config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &defaults); err != nil {
		return DefaultAdminDefaults(), fmt.Errorf("parse admin config %s: %w", path, err)
	}
	return defaults, nil
}
