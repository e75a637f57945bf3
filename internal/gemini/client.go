package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"turnaround-studio/internal/datauri"
	"turnaround-studio/internal/modeljson"
	"turnaround-studio/internal/retry"
	"turnaround-studio/internal/viewpoint"
)

// ErrNoImage marks a model reply that carried no inline image part.
var ErrNoImage = errors.New("model did not return an image")

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger

	Retry retry.Policy

	// RequestsPerMinute throttles generateContent calls. Zero disables
	// the limiter.
	RequestsPerMinute int

	// PromptCacheTTL controls how long derived prompt sets are reused for
	// an identical image + framing + mode. Zero disables the cache.
	PromptCacheTTL time.Duration
}

type Client struct {
	apiKey      string
	baseURL     string
	apiVersion  string
	httpClient  *http.Client
	logger      *slog.Logger
	retryPolicy retry.Policy
	limiter     *rate.Limiter
	promptCache *gocache.Cache
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	policy := opts.Retry
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 2)
	}

	var promptCache *gocache.Cache
	if opts.PromptCacheTTL > 0 {
		promptCache = gocache.New(opts.PromptCacheTTL, 2*opts.PromptCacheTTL)
	}

	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		apiVersion:  apiVersion,
		httpClient:  opts.HTTPClient,
		logger:      logger,
		retryPolicy: policy,
		limiter:     limiter,
		promptCache: promptCache,
	}
}

// DerivePrompts asks the text model which canonical viewpoints are missing
// from the image and returns exactly three generation prompts for them.
func (c *Client) DerivePrompts(ctx context.Context, img ImageInput, framing viewpoint.Framing, mode viewpoint.Mode) ([]string, error) {
	cacheKey := promptCacheKey(img, framing, mode)
	if c.promptCache != nil {
		if cached, ok := c.promptCache.Get(cacheKey); ok {
			if prompts, ok := cached.([]string); ok {
				c.logger.Debug("prompt cache hit", "framing", framing, "mode", mode)
				return prompts, nil
			}
		}
	}

	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: viewpoint.BuildAnalysisPrompt(framing)},
				{InlineData: &blob{Data: img.DataBase64, MimeType: img.MimeType}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:      0.2,
			ResponseMIMEType: "application/json",
		},
	}

	resp, err := c.generateContent(ctx, mode.TextModel(), req)
	if err != nil {
		return nil, fmt.Errorf("derive prompts: %w", err)
	}

	prompts, err := modeljson.DecodePrompts(collectText(resp))
	if err != nil {
		return nil, err
	}

	if c.promptCache != nil {
		c.promptCache.Set(cacheKey, prompts, gocache.DefaultExpiration)
	}
	return prompts, nil
}

// RenderView renders one missing viewpoint of the image and returns it as
// a data URI. The first inline image part of the reply wins; a reply with
// none fails with ErrNoImage.
func (c *Client) RenderView(ctx context.Context, img ImageInput, viewPrompt, styleKey, aspectRatio string, mode viewpoint.Mode) (string, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: viewpoint.BuildRenderPrompt(viewPrompt, styleKey)},
				{InlineData: &blob{Data: img.DataBase64, MimeType: img.MimeType}},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: viewpoint.NormalizeAspectRatio(aspectRatio)},
		},
	}

	resp, err := c.generateContent(ctx, mode.ImageModel(), req)
	if err != nil {
		return "", fmt.Errorf("render view: %w", err)
	}

	for _, p := range candidateParts(resp) {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return datauri.Format(p.InlineData.MimeType, p.InlineData.Data), nil
		}
	}
	return "", ErrNoImage
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	if c.httpClient == nil {
		return generateContentResponse{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(ctx, c.retryPolicy, func() (generateContentResponse, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return generateContentResponse{}, err
			}
		}
		return c.post(ctx, model, body)
	})
}

func (c *Client) post(ctx context.Context, model string, body []byte) (generateContentResponse, error) {
	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		c.logger.Warn("gemini API error", "model", model, "status", httpResp.StatusCode)
		return generateContentResponse{}, &APIError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       strings.TrimSpace(string(rawBody)),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

// APIError keeps the HTTP status and trimmed body so callers can classify
// overload, quota, and credential failures by status or substring.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API %s: %s", e.Status, e.Body)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

func promptCacheKey(img ImageInput, framing viewpoint.Framing, mode viewpoint.Mode) string {
	h := sha256.New()
	h.Write([]byte(img.DataBase64))
	h.Write([]byte{0})
	h.Write([]byte(img.MimeType))
	h.Write([]byte{0})
	h.Write([]byte(framing))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	return hex.EncodeToString(h.Sum(nil))
}

func collectText(resp generateContentResponse) string {
	var b strings.Builder
	for _, p := range candidateParts(resp) {
		if p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func candidateParts(resp generateContentResponse) []part {
	if len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64      `json:"temperature,omitempty"`
	ResponseMIMEType   string       `json:"responseMimeType,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}
