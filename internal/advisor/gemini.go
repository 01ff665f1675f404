package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGenerator calls the Gemini generateContent REST API.
type GeminiGenerator struct {
	apiKey   string
	params   ModelParams
	endpoint string
	client   *http.Client
}

// GeminiOption customizes the generator.
type GeminiOption func(*GeminiGenerator)

// WithEndpoint overrides the API base URL. Used by tests.
func WithEndpoint(endpoint string) GeminiOption {
	return func(g *GeminiGenerator) { g.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *GeminiGenerator) { g.client = client }
}

// NewGemini creates a Gemini generator. The API key is required.
func NewGemini(apiKey string, params ModelParams, opts ...GeminiOption) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, qerrors.NewMissingConfiguration("gemini.api_key",
			"set gemini.api_key in the config file or the QUERYLENS_GEMINI_API_KEY environment variable")
	}
	if params.Model == "" {
		params = DefaultModelParams()
	}
	g := &GeminiGenerator{
		apiKey:   apiKey,
		params:   params,
		endpoint: defaultGeminiEndpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the prompt and extracts the first candidate's text.
// Overload signals (HTTP 503/429, UNAVAILABLE, RESOURCE_EXHAUSTED) and
// empty responses are classified as retryable; timeouts count as overload.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{
			Temperature:     g.params.Temperature,
			MaxOutputTokens: g.params.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", &GeneratorError{Kind: KindOther, Message: "encode request", Cause: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.params.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &GeneratorError{Kind: KindOther, Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Transport timeouts look like load problems from here.
		return "", &GeneratorError{Kind: KindOverloaded, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", &GeneratorError{Kind: KindOther, Message: "read response", Cause: err}
	}

	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		return "", &GeneratorError{Kind: KindOverloaded,
			Message: fmt.Sprintf("backend overloaded (HTTP %d)", resp.StatusCode)}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &GeneratorError{Kind: KindOther,
			Message: fmt.Sprintf("decode response (HTTP %d)", resp.StatusCode), Cause: err}
	}
	if parsed.Error != nil {
		kind := KindOther
		if parsed.Error.Status == "UNAVAILABLE" || parsed.Error.Status == "RESOURCE_EXHAUSTED" ||
			strings.Contains(strings.ToLower(parsed.Error.Message), "overloaded") {
			kind = KindOverloaded
		}
		return "", &GeneratorError{Kind: kind,
			Message: fmt.Sprintf("API error %d: %s", parsed.Error.Code, parsed.Error.Message)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &GeneratorError{Kind: KindOther,
			Message: fmt.Sprintf("unexpected HTTP %d", resp.StatusCode)}
	}

	var text strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", &GeneratorError{Kind: KindEmpty, Message: "empty response"}
	}
	return text.String(), nil
}

var _ Generator = (*GeminiGenerator)(nil)
