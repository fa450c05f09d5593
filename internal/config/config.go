package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AWS       AWSConfig
	Relay     RelayConfig
	Gateway   GatewayConfig
	Index     IndexConfig
	Ingestion IngestionConfig
	LogLevel  string
}

// Load 从环境变量加载配置。各个二进制只校验自己需要的部分。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	index, err := loadIndexConfig()
	if err != nil {
		return nil, err
	}

	ingestion, err := loadIngestionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AWS:       AWSConfig{Region: strings.TrimSpace(os.Getenv("AWS_REGION"))},
		Relay:     relay,
		Gateway:   gateway,
		Index:     index,
		Ingestion: ingestion,
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AWSConfig 描述 AWS SDK 的公共配置。Region 为空时交给默认凭证链解析。
type AWSConfig struct {
	Region string
}

// Relay modes.
const (
	RelayModeLambda = "lambda"
	RelayModeLocal  = "local"
)

// Session policies.
const (
	SessionPolicyDownstream = "downstream"
	SessionPolicyClient     = "client"
)

// RelayConfig 描述聊天中继的配置。
type RelayConfig struct {
	Mode               string
	LambdaFunctionName string
	SessionPolicy      string
	InvokeTimeout      time.Duration
	ChatDBPath         string
}

// Validate 检查 lambda 模式下必需的函数名。
func (c RelayConfig) Validate() error {
	switch c.Mode {
	case RelayModeLambda:
		if c.LambdaFunctionName == "" {
			return errors.New("LAMBDA_FUNCTION_NAME is required when RELAY_MODE=lambda")
		}
	case RelayModeLocal:
	default:
		return fmt.Errorf("invalid RELAY_MODE value %q", c.Mode)
	}

	switch c.SessionPolicy {
	case SessionPolicyDownstream, SessionPolicyClient:
	default:
		return fmt.Errorf("invalid SESSION_POLICY value %q", c.SessionPolicy)
	}
	return nil
}

func loadRelayConfig() (RelayConfig, error) {
	timeout, err := parseDurationEnv("INVOKE_TIMEOUT", 300*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		Mode:               strings.ToLower(getEnvOrDefault("RELAY_MODE", RelayModeLambda)),
		LambdaFunctionName: strings.TrimSpace(os.Getenv("LAMBDA_FUNCTION_NAME")),
		SessionPolicy:      strings.ToLower(getEnvOrDefault("SESSION_POLICY", SessionPolicyDownstream)),
		InvokeTimeout:      timeout,
		ChatDBPath:         strings.TrimSpace(os.Getenv("CHAT_DB_PATH")),
	}, nil
}

// DefaultModelID is the foundation model used for answer generation.
const DefaultModelID = "anthropic.claude-3-sonnet-20240229-v1:0"

// GatewayConfig 描述检索网关的配置。
type GatewayConfig struct {
	KnowledgeBaseID  string
	KBExportName     string
	ModelID          string
	ForwardSessionID bool
	RetrieveTopK     int
}

func loadGatewayConfig() (GatewayConfig, error) {
	forward, err := parseBoolEnv("FORWARD_SESSION_ID", false)
	if err != nil {
		return GatewayConfig{}, err
	}

	topK := 3
	if override, err := parseOptionalIntEnv("RETRIEVE_TOP_K"); err != nil {
		return GatewayConfig{}, err
	} else if override != nil && *override > 0 {
		topK = *override
	}

	return GatewayConfig{
		KnowledgeBaseID:  strings.TrimSpace(os.Getenv("KNOWLEDGE_BASE_ID")),
		KBExportName:     getEnvOrDefault("KB_EXPORT_NAME", "BedrockKbId"),
		ModelID:          getEnvOrDefault("MODEL_ID", DefaultModelID),
		ForwardSessionID: forward,
		RetrieveTopK:     topK,
	}, nil
}

// IndexConfig 描述向量索引创建器的配置。
type IndexConfig struct {
	CollectionEndpoint string
	IndexName          string
	MaxAttempts        int
	RetryDelay         time.Duration
	SettleDelay        time.Duration
}

// Validate 检查索引创建器必需的环境变量。
func (c IndexConfig) Validate() error {
	if c.CollectionEndpoint == "" {
		return errors.New("COLLECTION_ENDPOINT is required")
	}
	if c.IndexName == "" {
		return errors.New("INDEX_NAME is required")
	}
	return nil
}

func loadIndexConfig() (IndexConfig, error) {
	retryDelay, err := parseDurationEnv("INDEX_RETRY_DELAY", 5*time.Second)
	if err != nil {
		return IndexConfig{}, err
	}

	settle, err := parseDurationEnv("INDEX_SETTLE_DELAY", 0)
	if err != nil {
		return IndexConfig{}, err
	}

	attempts := 30
	if override, err := parseOptionalIntEnv("INDEX_MAX_ATTEMPTS"); err != nil {
		return IndexConfig{}, err
	} else if override != nil {
		attempts = max(*override, 1)
	}

	return IndexConfig{
		CollectionEndpoint: strings.TrimSpace(os.Getenv("COLLECTION_ENDPOINT")),
		IndexName:          strings.TrimSpace(os.Getenv("INDEX_NAME")),
		MaxAttempts:        attempts,
		RetryDelay:         retryDelay,
		SettleDelay:        settle,
	}, nil
}

// IngestionConfig 控制摄取任务的轮询节奏。
type IngestionConfig struct {
	PollInterval time.Duration
	MaxPolls     int
}

func loadIngestionConfig() (IngestionConfig, error) {
	interval, err := parseDurationEnv("INGESTION_POLL_INTERVAL", 40*time.Second)
	if err != nil {
		return IngestionConfig{}, err
	}

	polls := 90
	if override, err := parseOptionalIntEnv("INGESTION_MAX_POLLS"); err != nil {
		return IngestionConfig{}, err
	} else if override != nil {
		polls = max(*override, 1)
	}

	return IngestionConfig{PollInterval: interval, MaxPolls: polls}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 Go 时长（"40s"）或纯数字秒数（"40"）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if secs, convErr := strconv.Atoi(raw); convErr == nil {
		val, err = time.Duration(secs)*time.Second, nil
	}
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}
