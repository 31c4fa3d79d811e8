package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/node"
)

const (
	// DefaultTimeout bounds every request the client issues.
	DefaultTimeout = 60 * time.Second

	policyBasePath  = "/policy/api/v1"
	versionPath     = "/api/v1/node/version"
	maxResponseSize = 256 << 20 // 256 MiB
)

// defaultSchemaPaths lists the OpenAPI documents fetched by GetSchemas when
// the config does not override them.
var defaultSchemaPaths = map[string]string{
	"policy": "/api/v1/spec/openapi/policy_api.json",
}

// ClientConfig holds the connection settings for a policy API endpoint.
type ClientConfig struct {
	// Endpoint is the base URL, e.g. https://manager.example.com.
	Endpoint string `json:"endpoint" yaml:"endpoint" validate:"required,url"`

	// Username and Password are used for basic authentication.
	Username string `json:"username" yaml:"username" validate:"required"`
	Password string `json:"password" yaml:"password" validate:"required"`

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// SchemaPaths overrides the OpenAPI documents fetched by GetSchemas,
	// keyed by source name.
	SchemaPaths map[string]string `json:"schema_paths" yaml:"schema_paths"`
}

// Client is an HTTP implementation of the Exporter, Applier, SchemaSource,
// and CapabilityDiscoverer contracts.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client bound to a single endpoint and credential pair.
func NewClient(config ClientConfig, logger zerolog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "remote").Str("endpoint", config.Endpoint).Logger(),
	}, nil
}

// GetConfiguration retrieves the hierarchical configuration tree. When
// domainID is set the remote side scopes the export to that domain.
func (c *Client) GetConfiguration(ctx context.Context, domainID string) (*node.Node, error) {
	reqURL := c.config.Endpoint + policyBasePath + "/infra"
	if domainID != "" {
		q := url.Values{}
		q.Set("filter", "Type-Domain|"+domainID)
		reqURL += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to export configuration: %w", err)
	}

	tree, err := node.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exported configuration: %w", err)
	}

	c.logger.Debug().
		Str("domain", domainID).
		Int("children", len(tree.Children())).
		Msg("Exported configuration")
	return tree, nil
}

// ApplyDelta submits a delta tree. An empty method defaults to PATCH. Remote
// rejections are reported in the result, not as a transport error.
func (c *Client) ApplyDelta(ctx context.Context, delta *node.Node, method string) (*ApplyResult, error) {
	if delta == nil {
		return nil, fmt.Errorf("delta is required")
	}
	if method == "" {
		method = http.MethodPatch
	}

	payload, err := json.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delta: %w", err)
	}

	reqURL := c.config.Endpoint + policyBasePath + "/infra"
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apply request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info().Str("method", method).Msg("Delta applied")
		return &ApplyResult{Success: true}, nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("method", method).
		Msg("Delta rejected by remote")
	return &ApplyResult{
		Success: false,
		Error:   fmt.Sprintf("remote returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
	}, nil
}

// GetSchemas fetches the configured OpenAPI documents. A document that fails
// to download or parse is logged and skipped.
func (c *Client) GetSchemas(ctx context.Context) (map[string]*node.Node, error) {
	paths := c.config.SchemaPaths
	if len(paths) == 0 {
		paths = defaultSchemaPaths
	}

	schemas := make(map[string]*node.Node, len(paths))
	for name, path := range paths {
		body, err := c.do(ctx, http.MethodGet, c.config.Endpoint+path, nil)
		if err != nil {
			c.logger.Warn().Err(err).Str("schema", name).Msg("Schema fetch failed, skipping")
			continue
		}
		doc, err := node.Parse(body)
		if err != nil {
			c.logger.Warn().Err(err).Str("schema", name).Msg("Schema parse failed, skipping")
			continue
		}
		schemas[name] = doc
	}
	return schemas, nil
}

// Capabilities resolves whether the endpoint exposes the policy API. A 404
// on the version endpoint means not applicable, not an error.
func (c *Client) Capabilities(ctx context.Context) (CapabilityInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+versionPath, nil)
	if err != nil {
		return CapabilityInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CapabilityInfo{}, fmt.Errorf("capability probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return CapabilityInfo{Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return CapabilityInfo{}, fmt.Errorf("capability probe returned %d", resp.StatusCode)
	}

	var version struct {
		ProductVersion string `json:"product_version"`
		NodeVersion    string `json:"node_version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return CapabilityInfo{}, fmt.Errorf("failed to decode version response: %w", err)
	}

	v := version.ProductVersion
	if v == "" {
		v = version.NodeVersion
	}
	return CapabilityInfo{Found: true, Version: v}, nil
}

func (c *Client) do(ctx context.Context, method, reqURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("remote returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}
