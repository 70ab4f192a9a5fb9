package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/internal/transfer"
)

type PublishService interface {
	// PublishImmediate publishes an owned post now.
	PublishImmediate(ctx context.Context, userID, postID int64) (*transfer.PublishResult, error)
	// PublishDelivered handles a queue delivery. Terminal posts and deliveries
	// carrying an outdated schedule version are skipped. A delivery ahead of
	// the stored version fails with an Unavailable error so it is retried.
	PublishDelivered(ctx context.Context, postID, version int64) (*transfer.PublishResult, error)
}

type publishService struct {
	pr      repository.PostRepository
	pm      repository.PostMediaRepository
	sa      repository.SocialAccountRepository
	pa      repository.PublishAttemptRepository
	adapter PublishAdapter
}

func NewPublishService(
	pr repository.PostRepository,
	pm repository.PostMediaRepository,
	sa repository.SocialAccountRepository,
	pa repository.PublishAttemptRepository,
	adapter PublishAdapter) PublishService {
	return &publishService{
		pr:      pr,
		pm:      pm,
		sa:      sa,
		pa:      pa,
		adapter: adapter,
	}
}

func (s *publishService) PublishImmediate(ctx context.Context, userID, postID int64) (*transfer.PublishResult, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil || post.UserID != userID {
		return nil, apperror.NotFound("post not found")
	}

	if err := models.Transition(post.Status, models.PostStatusPublishing); err != nil {
		return nil, apperror.Conflict(err.Error(), err)
	}

	return s.publish(ctx, post, models.TriggerImmediate)
}

func (s *publishService) PublishDelivered(ctx context.Context, postID, version int64) (*transfer.PublishResult, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, apperror.NotFound("post not found")
	}

	if post.Status.IsTerminal() || post.Status == models.PostStatusPublishing {
		slog.Info("skipping delivery for settled post", "post_id", postID, "status", post.Status)
		return skipped(post, fmt.Sprintf("post is already %s", post.Status)), nil
	}

	switch {
	case version == 0 && post.Status != models.PostStatusApproved:
		slog.Info("skipping unversioned delivery", "post_id", postID, "status", post.Status)
		return skipped(post, "delivery carries no schedule version"), nil
	case version > post.ScheduleVersion:
		// the job was enqueued before the schedule write committed
		slog.Warn("delivery ahead of stored schedule", "post_id", postID, "version", version, "current_version", post.ScheduleVersion)
		return nil, apperror.Unavailable("schedule not yet recorded for this delivery")
	case version > 0 && version < post.ScheduleVersion:
		slog.Info("skipping stale delivery", "post_id", postID, "version", version, "current_version", post.ScheduleVersion)
		return skipped(post, "post was rescheduled; delivery is stale"), nil
	}

	return s.publish(ctx, post, models.TriggerWebhook)
}

func skipped(post *models.Post, msg string) *transfer.PublishResult {
	return &transfer.PublishResult{
		PostID:         post.ID,
		Status:         string(post.Status),
		Skipped:        true,
		ExternalPostID: post.ExternalPostID,
		Message:        msg,
	}
}

func (s *publishService) publish(ctx context.Context, post *models.Post, trigger string) (*transfer.PublishResult, error) {
	account, err := s.instagramAccount(ctx, post.UserID)
	switch {
	case apperror.Is(err, apperror.KindCredentialMissing):
		account = nil
	case err != nil:
		return nil, err
	}

	if account != nil {
		post.Media, err = s.pm.ListAssetsByPostID(ctx, post.ID)
		if err != nil {
			return nil, fmt.Errorf("load post media: %w", err)
		}
	}

	claimed, err := s.pr.TransitionStatus(ctx, post.ID, models.PublishableStatuses, models.PostStatusPublishing)
	if err != nil {
		return nil, fmt.Errorf("claim post %d: %w", post.ID, err)
	}
	if !claimed {
		return nil, apperror.Conflict("post is already being published or has changed status", nil)
	}

	if account == nil {
		return s.simulate(ctx, post, trigger)
	}

	externalID, pubErr := s.adapter.Publish(ctx, post, account)
	if pubErr != nil {
		slog.Error("publish failed", "post_id", post.ID, "trigger", trigger, "error", pubErr)

		// the request context may already be done; the guard must still be released
		if err := s.pr.MarkFailed(context.WithoutCancel(ctx), post.ID, pubErr.Error()); err != nil {
			slog.Error("unable to mark post failed", "post_id", post.ID, "error", err)
		}
		s.recordAttempt(ctx, &models.PublishAttempt{
			UserID:       post.UserID,
			PostID:       post.ID,
			AccountID:    &account.ID,
			Trigger:      trigger,
			ErrorMessage: pubErr.Error(),
		})
		return nil, pubErr
	}

	if err := s.pr.MarkPublished(context.WithoutCancel(ctx), post.ID, externalID); err != nil {
		return nil, fmt.Errorf("mark post %d published: %w", post.ID, err)
	}
	s.recordAttempt(ctx, &models.PublishAttempt{
		UserID:         post.UserID,
		PostID:         post.ID,
		AccountID:      &account.ID,
		Trigger:        trigger,
		ExternalPostID: externalID,
	})

	return &transfer.PublishResult{
		PostID:         post.ID,
		Status:         string(models.PostStatusPublished),
		ExternalPostID: externalID,
		Message:        "Post published to Instagram",
	}, nil
}

// instagramAccount returns the user's connected account, or a
// CredentialMissing error when there is none to publish with.
func (s *publishService) instagramAccount(ctx context.Context, userID int64) (*models.SocialAccount, error) {
	account, err := s.sa.GetByUserID(ctx, userID, models.PlatformInstagram)
	if err != nil {
		return nil, fmt.Errorf("load instagram account: %w", err)
	}
	if account == nil || account.AccessToken == "" {
		return nil, apperror.CredentialMissing("no instagram account connected")
	}
	return account, nil
}

// simulate marks the post published without an external call. It is used
// when the owner has not connected an Instagram account.
func (s *publishService) simulate(ctx context.Context, post *models.Post, trigger string) (*transfer.PublishResult, error) {
	if err := s.pr.MarkPublished(context.WithoutCancel(ctx), post.ID, ""); err != nil {
		if errors.Is(err, repository.ErrStatusNotPublishing) {
			return nil, apperror.Conflict("post changed status during publish", err)
		}
		return nil, fmt.Errorf("mark post %d published: %w", post.ID, err)
	}

	slog.Warn("no instagram account connected, publish simulated", "post_id", post.ID, "user_id", post.UserID)
	s.recordAttempt(ctx, &models.PublishAttempt{
		UserID:    post.UserID,
		PostID:    post.ID,
		Trigger:   trigger,
		Simulated: true,
	})

	return &transfer.PublishResult{
		PostID:    post.ID,
		Status:    string(models.PostStatusPublished),
		Simulated: true,
		Message:   "Post marked as published (simulated: no Instagram account connected)",
	}, nil
}

func (s *publishService) recordAttempt(ctx context.Context, attempt *models.PublishAttempt) {
	if _, err := s.pa.Create(context.WithoutCancel(ctx), attempt); err != nil {
		slog.Warn("unable to record publish attempt", "post_id", attempt.PostID, "error", err)
	}
}
