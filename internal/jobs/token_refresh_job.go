package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/internal/service"
)

const (
	refreshWindow    = 30 * time.Minute
	concurrencyLimit = 10
)

type TokenRefreshJob struct {
	sr repository.SocialAccountRepository
	ig service.InstagramService
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, ig service.InstagramService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr: sr,
		ig: ig,
	}
}

// RefreshTokens renews every Instagram token that expires within the next
// 30 minutes.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, currentTime.Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		if acc.Platform != models.PlatformInstagram {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.ig.RefreshInstagramToken(ctx, acc.UserID, acc.AccessToken); err != nil {
				slog.Warn("unable to refresh instagram token", "user_id", acc.UserID, "error", err)
			}
		}(acc)
	}

	wg.Wait()
}
