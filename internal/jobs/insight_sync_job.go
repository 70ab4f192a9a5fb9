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

const insightLookback = 30 * 24 * time.Hour

// InsightSyncJob refreshes the engagement counters that feed publish time
// suggestions.
type InsightSyncJob struct {
	pr repository.PostRepository
	sr repository.SocialAccountRepository
	ir repository.InsightRepository
	f  service.InsightsFetcher
}

func NewInsightSyncJob(
	pr repository.PostRepository,
	sr repository.SocialAccountRepository,
	ir repository.InsightRepository,
	f service.InsightsFetcher) *InsightSyncJob {
	return &InsightSyncJob{
		pr: pr,
		sr: sr,
		ir: ir,
		f:  f,
	}
}

func (j *InsightSyncJob) SyncInsights() {
	ctx := context.Background()

	posts, err := j.pr.ListPublishedSince(ctx, time.Now().Add(-insightLookback))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var mu sync.Mutex
	accounts := map[int64]*models.SocialAccount{}
	account := func(userID int64) *models.SocialAccount {
		mu.Lock()
		defer mu.Unlock()
		if acc, ok := accounts[userID]; ok {
			return acc
		}
		acc, err := j.sr.GetByUserID(ctx, userID, models.PlatformInstagram)
		if err != nil {
			slog.Info(err.Error())
		}
		accounts[userID] = acc
		return acc
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, post := range posts {
		if post.ExternalPostID == "" {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(post *models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()

			acc := account(post.UserID)
			if acc == nil {
				return
			}

			insight, err := j.f.FetchInsights(ctx, post.ExternalPostID, acc)
			if err != nil {
				slog.Warn("unable to fetch insights", "post_id", post.ID, "error", err)
				return
			}
			insight.PostID = post.ID

			if err := j.ir.Upsert(ctx, insight); err != nil {
				slog.Warn("unable to store insights", "post_id", post.ID, "error", err)
			}
		}(post)
	}

	wg.Wait()
}
