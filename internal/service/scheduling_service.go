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
	"github.com/maheshrc27/physiopost/internal/transfer"
)

const (
	suggestSampleSize    = 20
	defaultSuggestHour   = 18
	defaultSuggestReason = "No historical data yet; 18:00 is a typical evening engagement peak"
)

// Actor is the authenticated caller of a post operation.
type Actor struct {
	UserID int64
	Role   approval.Role
}

// Scheduler holds publish deliveries until their time comes.
type Scheduler interface {
	EnqueuePost(ctx context.Context, postID, version int64, deliverAt time.Time) (string, error)
}

type SchedulingService interface {
	ScheduleExplicit(ctx context.Context, actor Actor, postID int64, when time.Time) (*transfer.ScheduleResult, error)
	SuggestTime(ctx context.Context, userID int64) (*transfer.SuggestedTime, error)
	PublishImmediate(ctx context.Context, actor Actor, postID int64) (*transfer.PublishResult, error)
}

type schedulingService struct {
	pr    repository.PostRepository
	ir    repository.InsightRepository
	queue Scheduler
	pub   PublishService
	gate  *approval.Gate
	loc   *time.Location
	now   func() time.Time
}

func NewSchedulingService(
	pr repository.PostRepository,
	ir repository.InsightRepository,
	queue Scheduler,
	pub PublishService,
	gate *approval.Gate,
	loc *time.Location) SchedulingService {
	if loc == nil {
		loc = time.UTC
	}
	return &schedulingService{
		pr:    pr,
		ir:    ir,
		queue: queue,
		pub:   pub,
		gate:  gate,
		loc:   loc,
		now:   time.Now,
	}
}

func (s *schedulingService) ownedPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil || post.UserID != userID {
		return nil, apperror.NotFound("post not found")
	}
	return post, nil
}

// ScheduleExplicit enqueues the delivery before persisting the new schedule
// so a stored schedule always has a live job. A writer that loses the
// version race gets a conflict and its job is discarded on delivery.
func (s *schedulingService) ScheduleExplicit(ctx context.Context, actor Actor, postID int64, when time.Time) (*transfer.ScheduleResult, error) {
	now := s.now()
	if !when.After(now) {
		return nil, apperror.InvalidSchedule(fmt.Sprintf("%s is not after %s", when.Format(time.RFC3339), now.Format(time.RFC3339)))
	}

	post, err := s.ownedPost(ctx, actor.UserID, postID)
	if err != nil {
		return nil, err
	}

	to, err := s.gate.Authorize(actor.Role, approval.ActionSchedule, post.Status)
	if err != nil {
		return nil, err
	}

	version := post.ScheduleVersion + 1
	jobID, err := s.queue.EnqueuePost(ctx, post.ID, version, when)
	if err != nil {
		return nil, err
	}

	ok, err := s.pr.SetSchedule(ctx, post.ID, when, to, post.ScheduleVersion, version)
	if err != nil {
		return nil, fmt.Errorf("store schedule for post %d: %w", post.ID, err)
	}
	if !ok {
		slog.Warn("schedule lost to a concurrent update", "post_id", post.ID, "job_id", jobID, "version", version)
		return nil, apperror.Conflict("post was rescheduled or changed status concurrently; retry", nil)
	}

	slog.Info("post scheduled", "post_id", post.ID, "job_id", jobID, "version", version, "deliver_at", when)

	return &transfer.ScheduleResult{
		PostID:      post.ID,
		ScheduledAt: when,
		Version:     version,
		JobID:       jobID,
		Message:     ScheduledMessage(when, s.loc),
	}, nil
}

func ScheduledMessage(when time.Time, loc *time.Location) string {
	return "Post scheduled for " + when.In(loc).Format("Mon, 02 Jan 2006 at 15:04 MST")
}

// SuggestTime picks the hour of day whose recent posts drew the best average
// engagement. Ties go to the earlier hour.
func (s *schedulingService) SuggestTime(ctx context.Context, userID int64) (*transfer.SuggestedTime, error) {
	samples, err := s.ir.ListRecentPublished(ctx, userID, suggestSampleSize)
	if err != nil {
		return nil, fmt.Errorf("load engagement history: %w", err)
	}

	if len(samples) == 0 {
		return &transfer.SuggestedTime{
			SuggestedTime:   fmt.Sprintf("%02d:00", defaultSuggestHour),
			Hour:            defaultSuggestHour,
			Reason:          defaultSuggestReason,
			EngagementScore: 0,
		}, nil
	}

	var sums [24]int64
	var counts [24]int
	for _, sample := range samples {
		h := sample.PublishedAt.In(s.loc).Hour()
		sums[h] += sample.Score()
		counts[h]++
	}

	best, bestAvg := -1, 0.0
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		avg := float64(sums[h]) / float64(counts[h])
		if best == -1 || avg > bestAvg {
			best, bestAvg = h, avg
		}
	}

	return &transfer.SuggestedTime{
		SuggestedTime:   fmt.Sprintf("%02d:00", best),
		Hour:            best,
		Reason:          fmt.Sprintf("Your %d posts published around %02d:00 averaged the highest engagement of your last %d posts", counts[best], best, len(samples)),
		EngagementScore: bestAvg,
	}, nil
}

func (s *schedulingService) PublishImmediate(ctx context.Context, actor Actor, postID int64) (*transfer.PublishResult, error) {
	post, err := s.ownedPost(ctx, actor.UserID, postID)
	if err != nil {
		return nil, err
	}

	if _, err := s.gate.Authorize(actor.Role, approval.ActionPublish, post.Status); err != nil {
		return nil, err
	}

	return s.pub.PublishImmediate(ctx, actor.UserID, postID)
}
