package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	config "github.com/maheshrc27/physiopost/configs"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"

type AuthService interface {
	AuthURL(state string) string
	LoginCallback(ctx context.Context, code string) (*models.User, error)
}

type authService struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	u            repository.UserRepository
}

func NewAuthService(cfg config.Config, u repository.UserRepository) AuthService {
	return &authService{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		u:           u,
	}
}

func (s *authService) AuthURL(state string) string {
	return s.oauth2Config.AuthCodeURL(state)
}

// LoginCallback exchanges the Google authorization code and returns the
// matching user, creating it on first login.
func (s *authService) LoginCallback(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		err := apperror.Validation("authorization code is empty")
		slog.Info(err.Error())
		return nil, err
	}

	if s.oauth2Config.ClientID == "" || s.oauth2Config.ClientSecret == "" || s.oauth2Config.RedirectURL == "" {
		return nil, fmt.Errorf("OAuth2 configuration is incomplete")
	}

	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, apperror.Authentication("google login failed")
	}

	userInfo, err := s.getUserInfo(s.oauth2Config.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	user, isExist, err := s.u.GetByEmail(ctx, userInfo.Email)
	if err != nil {
		return nil, err
	}
	if isExist {
		if user.Name != userInfo.Name || user.ProfilePicture != userInfo.Picture || user.GoogleID != userInfo.ID {
			user.GoogleID = userInfo.ID
			user.Name = userInfo.Name
			user.ProfilePicture = userInfo.Picture
			if err := s.u.UpdateProfile(ctx, user); err != nil {
				slog.Warn("could not refresh google profile", "user_id", user.ID, "error", err)
			}
		}
		return user, nil
	}

	user = &models.User{
		GoogleID:       userInfo.ID,
		Email:          userInfo.Email,
		Name:           userInfo.Name,
		ProfilePicture: userInfo.Picture,
		Role:           string(approval.RoleOwner),
	}
	user.ID, err = s.u.Create(ctx, nil, user)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

func (s *authService) getUserInfo(client *http.Client) (*transfer.GoogleUserInfo, error) {
	response, err := client.Get(s.userInfoURL)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error fetching user info: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, apperror.ExternalService("fetch google profile failed", fmt.Sprintf("unexpected response status: %d", response.StatusCode), nil)
	}

	var userInfo transfer.GoogleUserInfo
	if err := json.NewDecoder(response.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error decoding user info: %w", err)
	}

	return &userInfo, nil
}
