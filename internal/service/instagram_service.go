package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/physiopost/configs"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/internal/transfer"
	"github.com/maheshrc27/physiopost/pkg/utils"
)

const instagramTokenURL = "https://api.instagram.com/oauth/access_token"

// InstagramService manages the Instagram credential of a user: the OAuth
// connect flow and long-lived token refresh.
type InstagramService interface {
	InstagramCallback(ctx context.Context, code string, userID int64) (err error)
	RefreshInstagramToken(ctx context.Context, userID int64, accessToken string) error
}

type instagramService struct {
	cfg        config.Config
	sa         repository.SocialAccountRepository
	tokenURL   string
	graphURL   string
	httpClient *http.Client
	now        func() time.Time
}

func NewInstagramService(cfg config.Config, sa repository.SocialAccountRepository) InstagramService {
	return &instagramService{
		cfg:        cfg,
		sa:         sa,
		tokenURL:   instagramTokenURL,
		graphURL:   strings.TrimRight(cfg.Publish.GraphURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Publish.HTTPTimeout},
		now:        time.Now,
	}
}

// expiresAt turns a token lifetime in seconds into an absolute time.
func (ig *instagramService) expiresAt(expiresIn int) time.Time {
	return ig.now().Add(time.Duration(expiresIn) * time.Second)
}

func (ig *instagramService) InstagramCallback(ctx context.Context, code string, userID int64) (err error) {
	if code == "" {
		err = apperror.Validation("authorization code is empty")
		slog.Info(err.Error())
		return err
	}

	if userID == 0 {
		err = apperror.Authentication("user not found")
		slog.Info(err.Error())
		return err
	}

	token, err := ig.exchangeCodeForToken(ctx, code)
	if err != nil {
		return err
	}

	userInfo, err := ig.getInstagramUserInfo(ctx, token.LongLivedToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.LongLivedToken), []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	_, err = ig.sa.Upsert(ctx, &models.SocialAccount{
		UserID:          userID,
		Platform:        models.PlatformInstagram,
		AccountID:       userInfo.UserID,
		AccountName:     userInfo.Name,
		AccountUsername: userInfo.Username,
		ProfilePicture:  userInfo.ProfilePicture,
		AccessToken:     encryptedAccessToken,
		TokenExpiresAt:  token.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("save instagram account: %w", err)
	}

	slog.Info("instagram account connected", "user_id", userID, "account_id", userInfo.UserID)
	return nil
}

func (ig *instagramService) getShortLivedToken(ctx context.Context, code string) (*transfer.InstagramToken, error) {
	data := url.Values{}
	data.Set("client_id", ig.cfg.InstagramClientID)
	data.Set("client_secret", ig.cfg.InstagramClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", ig.cfg.InstagramRedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ig.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		AccessToken string `json:"access_token"`
		UserID      int    `json:"user_id"`
	}
	if err := doGraph(ig.httpClient, req, &result); err != nil {
		return nil, classifyGraphError("exchange authorization code", err)
	}

	return &transfer.InstagramToken{
		UserID:      result.UserID,
		AccessToken: result.AccessToken,
		ExpiresAt:   ig.now().Add(time.Hour),
	}, nil
}

type longLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (ig *instagramService) getLongLivedToken(ctx context.Context, shortLivedToken string) (*longLivedToken, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_exchange_token")
	q.Set("client_secret", ig.cfg.InstagramClientSecret)
	q.Set("access_token", shortLivedToken)

	var result longLivedToken
	if err := ig.getJSON(ctx, ig.graphURL+"/access_token?"+q.Encode(), &result); err != nil {
		return nil, classifyGraphError("exchange long-lived token", err)
	}
	return &result, nil
}

func (ig *instagramService) exchangeCodeForToken(ctx context.Context, code string) (*transfer.InstagramToken, error) {
	shortLived, err := ig.getShortLivedToken(ctx, code)
	if err != nil {
		return nil, err
	}

	longLived, err := ig.getLongLivedToken(ctx, shortLived.AccessToken)
	if err != nil {
		return nil, err
	}

	return &transfer.InstagramToken{
		UserID:         shortLived.UserID,
		AccessToken:    longLived.AccessToken,
		LongLivedToken: longLived.AccessToken,
		ExpiresAt:      ig.expiresAt(longLived.ExpiresIn),
	}, nil
}

func (ig *instagramService) getInstagramUserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	q := url.Values{}
	q.Set("fields", "id,username,name,account_type,profile_picture_url")
	q.Set("access_token", accessToken)

	var userInfo transfer.InstagramUserInfo
	if err := ig.getJSON(ctx, ig.graphURL+"/me?"+q.Encode(), &userInfo); err != nil {
		return nil, classifyGraphError("load instagram profile", err)
	}
	return &userInfo, nil
}

// RefreshInstagramToken swaps the stored long-lived token for a fresh one.
// accessToken is the encrypted value currently stored; the update only
// applies while it is still current.
func (ig *instagramService) RefreshInstagramToken(ctx context.Context, userID int64, accessToken string) error {
	decrypted, err := utils.Decrypt(accessToken, []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", decrypted)

	var result longLivedToken
	if err := ig.getJSON(ctx, ig.graphURL+"/refresh_access_token?"+q.Encode(), &result); err != nil {
		return classifyGraphError("refresh instagram token", err)
	}

	encrypted, err := utils.Encrypt([]byte(result.AccessToken), []byte(ig.cfg.SecretKey))
	if err != nil {
		return err
	}

	return ig.sa.SetToken(ctx, userID, accessToken, &models.SocialAccount{
		AccessToken:    encrypted,
		TokenExpiresAt: ig.expiresAt(result.ExpiresIn),
	})
}

func (ig *instagramService) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return doGraph(ig.httpClient, req, out)
}
