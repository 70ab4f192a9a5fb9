package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/physiopost/configs"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/transfer"
	"github.com/maheshrc27/physiopost/pkg/utils"
)

const (
	captionSeparator = "\n\n.\n.\n"
	maxCarouselItems = 10

	// Graph responses are small JSON documents; anything past this is dropped.
	maxGraphBody = 1 << 20
)

// PublishAdapter performs the external publish of a single post.
type PublishAdapter interface {
	Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (string, error)
}

// InsightsFetcher reads engagement counters of a published media object.
type InsightsFetcher interface {
	FetchInsights(ctx context.Context, mediaID string, account *models.SocialAccount) (*models.PostInsight, error)
}

type InstagramPublisher struct {
	baseURL        string
	httpClient     *http.Client
	secretKey      []byte
	containerDelay time.Duration
	pollAttempts   int
	pollInterval   time.Duration
	wait           func(ctx context.Context, d time.Duration) error
}

func NewInstagramPublisher(cfg config.Config) *InstagramPublisher {
	return &InstagramPublisher{
		baseURL:        strings.TrimRight(cfg.Publish.GraphURL, "/"),
		httpClient:     &http.Client{Timeout: cfg.Publish.HTTPTimeout},
		secretKey:      []byte(cfg.SecretKey),
		containerDelay: cfg.Publish.ContainerDelay,
		pollAttempts:   cfg.Publish.PollAttempts,
		pollInterval:   cfg.Publish.PollInterval,
		wait:           sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BuildCaption joins content and hashtags with the visual separator Instagram
// users expect. Bare words in hashtags get a leading '#'.
func BuildCaption(content, hashtags string) string {
	content = strings.TrimSpace(content)

	var tags []string
	for _, tag := range strings.Fields(strings.ReplaceAll(hashtags, ",", " ")) {
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	joined := strings.Join(tags, " ")

	switch {
	case content == "":
		return joined
	case joined == "":
		return content
	default:
		return content + captionSeparator + joined
	}
}

func (p *InstagramPublisher) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (string, error) {
	if len(post.Media) == 0 {
		return "", apperror.Validation("instagram posts need at least one media item")
	}

	accessToken, err := utils.Decrypt(account.AccessToken, p.secretKey)
	if err != nil {
		return "", fmt.Errorf("decrypt instagram access token: %w", err)
	}

	caption := BuildCaption(post.Content, post.Hashtags)

	var containerID string
	if post.Format == models.PostFormatCarousel && len(post.Media) > 1 {
		containerID, err = p.createCarousel(ctx, account.AccountID, accessToken, caption, post.Media)
	} else {
		containerID, err = p.createContainer(ctx, account.AccountID, accessToken, mediaParams(post.PrimaryMedia(), post.Format, caption))
	}
	if err != nil {
		return "", err
	}

	if err := p.waitUntilReady(ctx, containerID, accessToken); err != nil {
		return "", err
	}

	externalID, err := p.publishContainer(ctx, account.AccountID, containerID, accessToken)
	if err != nil {
		return "", err
	}

	slog.Info("instagram post published", "post_id", post.ID, "container_id", containerID, "media_id", externalID)
	return externalID, nil
}

func mediaParams(media *models.MediaAsset, format models.PostFormat, caption string) map[string]any {
	params := map[string]any{}
	if caption != "" {
		params["caption"] = caption
	}
	if media.IsVideo() || format == models.PostFormatShortVideo {
		params["media_type"] = "REELS"
		params["video_url"] = media.FileURL
		if media.ThumbnailURL != "" {
			params["cover_url"] = media.ThumbnailURL
		}
		return params
	}
	params["image_url"] = media.FileURL
	return params
}

func (p *InstagramPublisher) createCarousel(ctx context.Context, accountID, accessToken, caption string, media []*models.MediaAsset) (string, error) {
	if len(media) > maxCarouselItems {
		return "", apperror.Validation(fmt.Sprintf("a carousel holds at most %d items, got %d", maxCarouselItems, len(media)))
	}

	children := make([]string, 0, len(media))
	for _, m := range media {
		item := map[string]any{"is_carousel_item": true}
		if m.IsVideo() {
			item["media_type"] = "VIDEO"
			item["video_url"] = m.FileURL
		} else {
			item["image_url"] = m.FileURL
		}

		id, err := p.createContainer(ctx, accountID, accessToken, item)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return p.createContainer(ctx, accountID, accessToken, map[string]any{
		"media_type": "CAROUSEL",
		"caption":    caption,
		"children":   strings.Join(children, ","),
	})
}

func (p *InstagramPublisher) createContainer(ctx context.Context, accountID, accessToken string, params map[string]any) (string, error) {
	params["access_token"] = accessToken

	var result transfer.InstagramIDResponse
	if err := p.postJSON(ctx, fmt.Sprintf("%s/%s/media", p.baseURL, accountID), params, &result); err != nil {
		return "", classifyGraphError("create media container", err)
	}
	if result.ID == "" {
		return "", apperror.ExternalService("create media container", "no container id returned from Instagram", nil)
	}
	return result.ID, nil
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, accountID, containerID, accessToken string) (string, error) {
	var result transfer.InstagramIDResponse
	err := p.postJSON(ctx, fmt.Sprintf("%s/%s/media_publish", p.baseURL, accountID), map[string]any{
		"creation_id":  containerID,
		"access_token": accessToken,
	}, &result)
	if err != nil {
		return "", classifyGraphError("publish media container", err)
	}
	if result.ID == "" {
		return "", apperror.ExternalService("publish media container", "no media id returned from Instagram", nil)
	}
	return result.ID, nil
}

// waitUntilReady sleeps the fixed container delay and, when polling is
// enabled, checks status_code until FINISHED or the attempts run out.
func (p *InstagramPublisher) waitUntilReady(ctx context.Context, containerID, accessToken string) error {
	if err := p.wait(ctx, p.containerDelay); err != nil {
		return apperror.Timeout("waiting for media container", err)
	}
	if p.pollAttempts <= 0 {
		return nil
	}

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		status, err := p.containerStatus(ctx, containerID, accessToken)
		if err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return apperror.ExternalService("media container processing failed", status.Status, nil)
		}

		if attempt < p.pollAttempts {
			if err := p.wait(ctx, p.pollInterval); err != nil {
				return apperror.Timeout("waiting for media container", err)
			}
		}
	}

	return apperror.Timeout(fmt.Sprintf("media container %s still processing after %d polls", containerID, p.pollAttempts), nil)
}

func (p *InstagramPublisher) containerStatus(ctx context.Context, containerID, accessToken string) (*transfer.InstagramContainerStatus, error) {
	q := url.Values{}
	q.Set("fields", "status_code,status")
	q.Set("access_token", accessToken)

	var status transfer.InstagramContainerStatus
	if err := p.getJSON(ctx, fmt.Sprintf("%s/%s?%s", p.baseURL, containerID, q.Encode()), &status); err != nil {
		return nil, classifyGraphError("read media container status", err)
	}
	return &status, nil
}

func (p *InstagramPublisher) FetchInsights(ctx context.Context, mediaID string, account *models.SocialAccount) (*models.PostInsight, error) {
	accessToken, err := utils.Decrypt(account.AccessToken, p.secretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt instagram access token: %w", err)
	}

	q := url.Values{}
	q.Set("metric", "likes,comments,saved")
	q.Set("access_token", accessToken)

	var insights transfer.InstagramInsights
	if err := p.getJSON(ctx, fmt.Sprintf("%s/%s/insights?%s", p.baseURL, mediaID, q.Encode()), &insights); err != nil {
		return nil, classifyGraphError("fetch media insights", err)
	}

	return &models.PostInsight{
		Likes:     insights.Metric("likes"),
		Comments:  insights.Metric("comments"),
		Saves:     insights.Metric("saved"),
		FetchedAt: time.Now(),
	}, nil
}

// graphError carries a non-2xx Graph API response.
type graphError struct {
	StatusCode int
	Body       transfer.InstagramErrorResponse
	Raw        string
}

func (e *graphError) Error() string {
	if e.Body.Error.Message != "" {
		return fmt.Sprintf("instagram returned %d: %s", e.StatusCode, e.Body.Error.Message)
	}
	return fmt.Sprintf("instagram returned %d: %s", e.StatusCode, e.Raw)
}

func (p *InstagramPublisher) postJSON(ctx context.Context, endpoint string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *InstagramPublisher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return p.do(req, out)
}

func (p *InstagramPublisher) do(req *http.Request, out any) error {
	return doGraph(p.httpClient, req, out)
}

// doGraph sends req and decodes a 2xx body into out. Other statuses come
// back as *graphError.
func doGraph(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphBody))
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := &graphError{StatusCode: resp.StatusCode, Raw: string(respBody)}
		_ = json.Unmarshal(respBody, &gerr.Body)
		return gerr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}

func classifyGraphError(step string, err error) error {
	var gerr *graphError
	if errors.As(err, &gerr) {
		details := gerr.Body.Error.Message
		if gerr.Body.Error.ErrorUserMsg != "" {
			details = gerr.Body.Error.ErrorUserMsg
		}
		if details == "" {
			details = gerr.Raw
		}
		return apperror.ExternalService(step+" failed", details, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperror.Timeout(step+" timed out", err)
	}

	return apperror.ExternalService(step+" failed", err.Error(), err)
}
