// Package vectorindex manages the k-NN index inside the OpenSearch
// Serverless collection that backs the knowledge base.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v2/signer/awsv2"
	"go.uber.org/zap"

	"github.com/zhouzirui/pdf-chat/backend/internal/model/kb"
)

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// ServiceName is the SigV4 signing name of OpenSearch Serverless.
const ServiceName = "aoss"

// Client wraps an opensearch client with the three index operations we need.
type Client struct {
	os     *opensearch.Client
	logger *zap.Logger
}

// NewClient builds a client from a raw opensearch configuration.
func NewClient(cfg opensearch.Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	osClient, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &Client{os: osClient, logger: logger}, nil
}

// NewServerlessClient signs every request for the collection at endpoint
// with the credentials in awsCfg.
func NewServerlessClient(awsCfg aws.Config, endpoint string, logger *zap.Logger) (*Client, error) {
	signer, err := requestsigner.NewSignerWithService(awsCfg, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("create request signer: %w", err)
	}
	return NewClient(opensearch.Config{
		Addresses: []string{NormalizeEndpoint(endpoint)},
		Signer:    signer,
	}, logger)
}

// NormalizeEndpoint accepts a bare collection host and prefixes https.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// Create creates name with schema. An existing index yields ErrIndexExists.
func (c *Client) Create(ctx context.Context, name string, schema kb.IndexSchema) error {
	body, err := schema.Body()
	if err != nil {
		return fmt.Errorf("render index body: %w", err)
	}

	res, err := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  bytes.NewReader(body),
	}.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		apiErr := decodeError(res.StatusCode, res.Body)
		if apiErr.Type == "resource_already_exists_exception" {
			return fmt.Errorf("%w: %s", ErrIndexExists, name)
		}
		return fmt.Errorf("create index %s: %w", name, apiErr)
	}

	c.logger.Info("created vector index", zap.String("index", name), zap.Int("dimension", schema.Dimension))
	return nil
}

// Exists reports whether name is present in the collection.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, c.os)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("check index %s: %w", name, decodeError(res.StatusCode, res.Body))
}

// Delete removes name. A missing index yields ErrIndexNotFound.
func (c *Client) Delete(ctx context.Context, name string) error {
	res, err := opensearchapi.IndicesDeleteRequest{Index: []string{name}}.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	if res.IsError() {
		return fmt.Errorf("delete index %s: %w", name, decodeError(res.StatusCode, res.Body))
	}

	c.logger.Info("deleted vector index", zap.String("index", name))
	return nil
}

// APIError is the error envelope returned by OpenSearch.
type APIError struct {
	StatusCode int
	Type       string
	Reason     string
}

func (e *APIError) Error() string {
	switch {
	case e.Type == "" && e.Reason == "":
		return fmt.Sprintf("opensearch returned status %d", e.StatusCode)
	case e.Type == "":
		return fmt.Sprintf("opensearch returned status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("opensearch returned status %d: %s: %s", e.StatusCode, e.Type, e.Reason)
}

func decodeError(status int, body io.Reader) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err != nil {
		// Some gateways answer with a plain string.
		var reason string
		if json.Unmarshal(envelope.Error, &reason) == nil {
			apiErr.Reason = reason
		}
		return apiErr
	}
	apiErr.Type, apiErr.Reason = detail.Type, detail.Reason
	return apiErr
}
