package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	config "github.com/maheshrc27/physiopost/configs"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
)

const INSTAGRAM_AUTH_URL = "https://www.instagram.com/oauth/authorize"

type PlatformService interface {
	GetAuthURL(ctx context.Context, platform, tokenString string) (string, error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type platformService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
}

func NewPlatformService(cfg config.Config, sa repository.SocialAccountRepository) PlatformService {
	return &platformService{
		cfg: cfg,
		sa:  sa,
	}
}

// GetAuthURL builds the consent URL of platform. The session token travels
// as the OAuth state so the callback can identify the user.
func (s *platformService) GetAuthURL(ctx context.Context, platform, tokenString string) (string, error) {
	switch platform {
	case models.PlatformInstagram:
		params := url.Values{}
		params.Add("client_id", s.cfg.InstagramClientID)
		params.Add("scope", "instagram_business_basic,instagram_business_content_publish,instagram_business_manage_insights")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.InstagramRedirectURI)
		params.Add("state", tokenString)
		return fmt.Sprintf("%s?%s", INSTAGRAM_AUTH_URL, params.Encode()), nil
	default:
		return "", apperror.Validation(fmt.Sprintf("unsupported platform %q", platform))
	}
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		return nil, apperror.Authentication("user not found")
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting social accounts: %w", err)
	}
	return accounts, nil
}

// Delete unbinds the credential. Later publishes of this user's posts are
// simulated.
func (s *platformService) Delete(ctx context.Context, userID, accountID int64) error {
	if userID == 0 || accountID == 0 {
		return apperror.NotFound("social account doesn't exist")
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		slog.Info("social account not owned", "user_id", userID, "account_id", accountID)
		return apperror.NotFound("social account doesn't exist")
	}

	if err := s.sa.Remove(ctx, accountID); err != nil {
		return fmt.Errorf("Error removing account info: %w", err)
	}
	return nil
}
