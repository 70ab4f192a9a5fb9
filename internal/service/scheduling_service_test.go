package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type schedulingFixture struct {
	posts    *memPostRepo
	insights *fakeInsightRepo
	queue    *fakeScheduler
	pub      *publishFixture
	svc      *schedulingService
}

func newSchedulingFixture() *schedulingFixture {
	pub := newPublishFixture()
	f := &schedulingFixture{
		posts:    pub.posts,
		insights: &fakeInsightRepo{},
		queue:    &fakeScheduler{},
		pub:      pub,
	}
	svc := NewSchedulingService(f.posts, f.insights, f.queue, pub.svc, approval.NewGate(), time.UTC).(*schedulingService)
	svc.now = func() time.Time { return fixedNow }
	f.svc = svc
	return f
}

var owner = Actor{UserID: 7, Role: approval.RoleOwner}

func TestScheduleExplicit(t *testing.T) {
	f := newSchedulingFixture()
	p := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})
	when := fixedNow.Add(time.Hour)

	res, err := f.svc.ScheduleExplicit(context.Background(), owner, p.ID, when)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, "Post scheduled for Mon, 10 Mar 2025 at 10:30 UTC", res.Message)

	stored := f.posts.get(p.ID)
	assert.Equal(t, models.PostStatusApproved, stored.Status)
	require.NotNil(t, stored.ScheduledTime)
	assert.True(t, stored.ScheduledTime.Equal(when))

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, scheduledJob{PostID: p.ID, Version: 1, DeliverAt: when}, f.queue.jobs[0])
}

func TestScheduleExplicit_RejectsPastAndPresent(t *testing.T) {
	for _, when := range []time.Time{fixedNow, fixedNow.Add(-time.Minute)} {
		f := newSchedulingFixture()
		p := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})

		_, err := f.svc.ScheduleExplicit(context.Background(), owner, p.ID, when)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrInvalidSchedule))
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

		stored := f.posts.get(p.ID)
		assert.Equal(t, models.PostStatusDraft, stored.Status)
		assert.Nil(t, stored.ScheduledTime)
		assert.Empty(t, f.queue.jobs)
	}
}

func TestScheduleExplicit_RescheduleBumpsVersion(t *testing.T) {
	f := newSchedulingFixture()
	p := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})

	_, err := f.svc.ScheduleExplicit(context.Background(), owner, p.ID, fixedNow.Add(time.Hour))
	require.NoError(t, err)
	res, err := f.svc.ScheduleExplicit(context.Background(), owner, p.ID, fixedNow.Add(2*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Version)
	assert.Len(t, f.queue.jobs, 2)
	assert.Equal(t, int64(2), f.posts.get(p.ID).ScheduleVersion)

	// the first job is now stale and is skipped on delivery
	out, err := f.pub.svc.PublishDelivered(context.Background(), p.ID, f.queue.jobs[0].Version)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
}

func TestScheduleExplicit_QueueFailureLeavesPostUntouched(t *testing.T) {
	f := newSchedulingFixture()
	f.queue.err = apperror.QueueScheduling("redis unavailable", nil)
	p := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})

	_, err := f.svc.ScheduleExplicit(context.Background(), owner, p.ID, fixedNow.Add(time.Hour))
	assert.Equal(t, apperror.KindQueueScheduling, apperror.KindOf(err))

	stored := f.posts.get(p.ID)
	assert.Equal(t, models.PostStatusDraft, stored.Status)
	assert.Nil(t, stored.ScheduledTime)
}

func TestScheduleExplicit_TerminalAndForeign(t *testing.T) {
	f := newSchedulingFixture()
	published := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusPublished})
	foreign := f.posts.put(&models.Post{UserID: 8, Status: models.PostStatusDraft})

	_, err := f.svc.ScheduleExplicit(context.Background(), owner, published.ID, fixedNow.Add(time.Hour))
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	_, err = f.svc.ScheduleExplicit(context.Background(), owner, foreign.ID, fixedNow.Add(time.Hour))
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Empty(t, f.queue.jobs)
}

func TestScheduleExplicit_EditorNeedsApproval(t *testing.T) {
	f := newSchedulingFixture()
	draft := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})
	approved := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusApproved})
	editor := Actor{UserID: 7, Role: approval.RoleEditor}

	_, err := f.svc.ScheduleExplicit(context.Background(), editor, draft.ID, fixedNow.Add(time.Hour))
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	_, err = f.svc.ScheduleExplicit(context.Background(), editor, approved.ID, fixedNow.Add(time.Hour))
	assert.NoError(t, err)
}

func TestScheduleExplicit_LostVersionRace(t *testing.T) {
	f := newSchedulingFixture()
	p := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})

	// a concurrent writer stores version 1 after we read version 0
	racing := &racingRepo{memPostRepo: f.posts, onSchedule: func() {
		_, _ = f.posts.SetSchedule(context.Background(), p.ID, fixedNow.Add(3*time.Hour), models.PostStatusApproved, 0, 1)
	}}
	f.svc.pr = racing

	_, err := f.svc.ScheduleExplicit(context.Background(), owner, p.ID, fixedNow.Add(time.Hour))
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	stored := f.posts.get(p.ID)
	assert.True(t, stored.ScheduledTime.Equal(fixedNow.Add(3*time.Hour)))
}

type racingRepo struct {
	*memPostRepo
	onSchedule func()
}

func (r *racingRepo) SetSchedule(ctx context.Context, postID int64, scheduledAt time.Time, status models.PostStatus, expectedVersion, newVersion int64) (bool, error) {
	r.onSchedule()
	return r.memPostRepo.SetSchedule(ctx, postID, scheduledAt, status, expectedVersion, newVersion)
}

func samplesAt(hour, n int, likes, comments, saves int64) []models.EngagementSample {
	out := make([]models.EngagementSample, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.EngagementSample{
			PostID:      int64(hour*100 + i),
			PublishedAt: time.Date(2025, 2, 1+i, hour, 15, 0, 0, time.UTC),
			Likes:       likes,
			Comments:    comments,
			Saves:       saves,
		})
	}
	return out
}

func TestSuggestTime_NoHistory(t *testing.T) {
	f := newSchedulingFixture()

	got, err := f.svc.SuggestTime(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "18:00", got.SuggestedTime)
	assert.Equal(t, 18, got.Hour)
	assert.Equal(t, defaultSuggestReason, got.Reason)
	assert.Zero(t, got.EngagementScore)
}

func TestSuggestTime_PicksBestAverage(t *testing.T) {
	f := newSchedulingFixture()
	// hour 9: 10 posts scoring 40 each; hour 20: 5 posts scoring 90 each
	f.insights.samples = append(samplesAt(9, 10, 40, 0, 0), samplesAt(20, 5, 30, 10, 15)...)

	got, err := f.svc.SuggestTime(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Hour)
	assert.Equal(t, "20:00", got.SuggestedTime)
	assert.InDelta(t, 90.0, got.EngagementScore, 0.001)
}

func TestSuggestTime_TieGoesToEarlierHour(t *testing.T) {
	f := newSchedulingFixture()
	f.insights.samples = append(samplesAt(21, 2, 10, 0, 0), samplesAt(7, 3, 4, 2, 0)...)

	got, err := f.svc.SuggestTime(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Hour)
}

func TestSuggestTime_UsesConfiguredZone(t *testing.T) {
	f := newSchedulingFixture()
	loc := time.FixedZone("CET", 3600)
	f.svc.loc = loc
	f.insights.samples = samplesAt(17, 2, 50, 0, 0)

	got, err := f.svc.SuggestTime(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 18, got.Hour)
}

func TestSchedulingPublishImmediate_Gate(t *testing.T) {
	f := newSchedulingFixture()
	draft := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusDraft})
	approved := f.posts.put(&models.Post{UserID: 7, Status: models.PostStatusApproved})
	editor := Actor{UserID: 7, Role: approval.RoleEditor}

	_, err := f.svc.PublishImmediate(context.Background(), editor, draft.ID)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
	assert.Equal(t, models.PostStatusDraft, f.posts.get(draft.ID).Status)

	res, err := f.svc.PublishImmediate(context.Background(), editor, approved.ID)
	require.NoError(t, err)
	assert.True(t, res.Simulated)
}
