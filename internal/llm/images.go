package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vellum/internal/catalog"
	"vellum/internal/config"
	"vellum/internal/manifest"
	"vellum/internal/retry"
)

const defaultImageTimeout = 180 * time.Second

// ImageClient wraps an OpenAI-compatible image generation API.
type ImageClient struct {
	cfg        config.Images
	apiKey     string
	httpClient *http.Client
}

// ImageOption customizes the image client.
type ImageOption func(*ImageClient)

// WithImageHTTPClient overrides the default HTTP client.
func WithImageHTTPClient(client *http.Client) ImageOption {
	return func(c *ImageClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewImageClient constructs an image client from the images config section.
// The API key is shared with the text endpoint.
func NewImageClient(cfg config.Images, apiKey string, opts ...ImageOption) *ImageClient {
	timeout := defaultImageTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &ImageClient{
		cfg:        cfg,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.openai.com/v1/images/generations"
	}
	if client.cfg.Size == "" {
		client.cfg.Size = "1024x1024"
	}
	return client
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate renders one image for prompt and returns the raw PNG bytes.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("image generate: prompt required")
	}
	if c.apiKey == "" {
		return nil, errors.New("image generate: api key required")
	}

	encoded, err := json.Marshal(imageRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("image generate: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("image generate: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, c.httpClient.Timeout)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("image generate: read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyStatusError(resp, body)
	}

	var parsed imageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, retry.Transient(fmt.Errorf("image generate: decode response: %w", err))
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("image generate: api error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, retry.Transient(errors.New("image generate: empty image payload"))
	}
	image, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("image generate: decode image: %w", err)
	}
	return image, nil
}

// ScenePrompt composes the rendering prompt for one scene: style prefix,
// scene composition, then visual descriptions of every catalog entity the
// scene names, so recurring characters look the same across chapters.
func (c *ImageClient) ScenePrompt(scene manifest.Scene, refs *catalog.Catalog) string {
	var sb strings.Builder
	if prefix := strings.TrimSpace(c.cfg.StylePrefix); prefix != "" {
		sb.WriteString(prefix)
		sb.WriteString(" ")
	}
	sb.WriteString(scene.Summary)
	if scene.VisualElements != "" {
		sb.WriteString(" ")
		sb.WriteString(scene.VisualElements)
	}
	for _, name := range scene.Entities {
		for _, entity := range refs.LookupByName(name) {
			if entity.Description == "" {
				continue
			}
			fmt.Fprintf(&sb, " %s: %s", entity.Name, entity.Description)
		}
	}
	return strings.TrimSpace(sb.String())
}
