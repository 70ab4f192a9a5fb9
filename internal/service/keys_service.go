package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/pkg/utils"
)

const maxApiKeys = 5

type ApiKeyService interface {
	// Create issues a key acting as role, or as the caller's own role when
	// role is empty. The plaintext key is only ever returned here.
	Create(ctx context.Context, actor Actor, role approval.Role) (*models.ApiKey, error)
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	// Resolve returns the stored key matching apiKey.
	Resolve(ctx context.Context, apiKey string) (*models.ApiKey, error)
	RemoveAPIKey(ctx context.Context, userID, keyID int64) error
}

type apiKeyService struct {
	k   repository.ApiKeyRepository
	now func() time.Time
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k:   k,
		now: time.Now,
	}
}

func (s *apiKeyService) Create(ctx context.Context, actor Actor, role approval.Role) (*models.ApiKey, error) {
	if role == "" {
		role = actor.Role
	}
	if !actor.Role.Grants(role) {
		return nil, apperror.Forbidden(fmt.Sprintf("%s cannot issue %s keys", actor.Role, role))
	}

	keys, err := s.k.GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if len(keys) >= maxApiKeys {
		err := apperror.Conflict(fmt.Sprintf("only %d API keys can be created", maxApiKeys), nil)
		slog.Info(err.Error())
		return nil, err
	}

	key, err := utils.GenerateAPIKey()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("Error generating API key: %w", err)
	}

	apiKey := &models.ApiKey{
		UserID:  actor.UserID,
		Role:    string(role),
		Prefix:  utils.DisplayPrefix(key),
		KeyHash: utils.HashAPIKey(key),
	}

	apiKey.ID, err = s.k.Create(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("Error saving API key: %w", err)
	}
	apiKey.Key = key

	slog.Info("api key issued", "user_id", actor.UserID, "key_id", apiKey.ID, "role", role)
	return apiKey, nil
}

func (s *apiKeyService) Resolve(ctx context.Context, apiKey string) (*models.ApiKey, error) {
	key, err := s.k.GetByHash(ctx, utils.HashAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apperror.Authentication("invalid API key")
	}

	if err := s.k.TouchLastUsed(ctx, key.ID, s.now()); err != nil {
		slog.Warn("could not record api key use", "key_id", key.ID, "error", err)
	}
	return key, nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting API keys: %w", err)
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	if userID == 0 || keyID == 0 {
		return apperror.NotFound("key doesn't exist")
	}

	isValid, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		slog.Info("api key not owned", "user_id", userID, "key_id", keyID)
		return apperror.NotFound("key doesn't exist")
	}

	return s.k.Remove(ctx, keyID)
}
