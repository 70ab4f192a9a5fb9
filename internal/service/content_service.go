package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/transfer"
)

// ContentGenerator drafts post copy for a topic.
type ContentGenerator interface {
	Generate(ctx context.Context, req transfer.GenerateRequest) (*transfer.GeneratedContent, error)
}

type HTTPContentGenerator struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPContentGenerator(endpoint string, timeout time.Duration) *HTTPContentGenerator {
	return &HTTPContentGenerator{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPContentGenerator) Generate(ctx context.Context, in transfer.GenerateRequest) (*transfer.GeneratedContent, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ExternalService("content generator unreachable", err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.ExternalService("content generator failed", fmt.Sprintf("status %d: %s", resp.StatusCode, respBody), nil)
	}

	var out transfer.GeneratedContent
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, apperror.ExternalService("content generator failed", "empty content", nil)
	}
	return &out, nil
}

// FallbackGenerator serves placeholder copy when the primary generator is
// not configured or fails.
type FallbackGenerator struct {
	primary ContentGenerator
}

func NewFallbackGenerator(primary ContentGenerator) *FallbackGenerator {
	return &FallbackGenerator{primary: primary}
}

func (g *FallbackGenerator) Generate(ctx context.Context, req transfer.GenerateRequest) (*transfer.GeneratedContent, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, apperror.Validation("topic is required")
	}

	if g.primary != nil {
		out, err := g.primary.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		slog.Warn("content generator unavailable, using placeholder", "error", err)
	}

	return placeholderContent(req), nil
}

func placeholderContent(req transfer.GenerateRequest) *transfer.GeneratedContent {
	topic := strings.TrimSpace(req.Topic)
	tag := strings.ToLower(strings.Join(strings.Fields(topic), ""))
	return &transfer.GeneratedContent{
		Title:       topic,
		Content:     fmt.Sprintf("%s\n\nShare your questions about %s in the comments and book a session if you need a hand.", topic, topic),
		Hashtags:    fmt.Sprintf("#physiotherapy #%s", tag),
		Placeholder: true,
	}
}
