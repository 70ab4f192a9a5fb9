package service

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
)

// memPostRepo is an in-memory PostRepository with the same conditional
// update semantics as the SQL one.
type memPostRepo struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]*models.Post
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{nextID: 1, posts: map[int64]*models.Post{}}
}

func (r *memPostRepo) put(p *models.Post) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	cp := *p
	r.posts[p.ID] = &cp
	return p
}

func (r *memPostRepo) get(id int64) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (r *memPostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return r.get(id), nil
}

func (r *memPostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	return r.put(post).ID, nil
}

func (r *memPostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPostRepo) TransitionStatus(ctx context.Context, postID int64, from []models.PostStatus, to models.PostStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if p.Status == s {
			p.Status = to
			p.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *memPostRepo) SetSchedule(ctx context.Context, postID int64, scheduledAt time.Time, status models.PostStatus, expectedVersion, newVersion int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.ScheduleVersion != expectedVersion || !p.Status.IsSchedulable() {
		return false, nil
	}
	at := scheduledAt
	p.ScheduledTime = &at
	p.Status = status
	p.ScheduleVersion = newVersion
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *memPostRepo) release(postID int64, to models.PostStatus, externalID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.Status != models.PostStatusPublishing {
		return repository.ErrStatusNotPublishing
	}
	p.Status = to
	p.ExternalPostID = externalID
	p.LastError = reason
	p.UpdatedAt = time.Now()
	return nil
}

func (r *memPostRepo) MarkPublished(ctx context.Context, postID int64, externalPostID string) error {
	return r.release(postID, models.PostStatusPublished, externalPostID, "")
}

func (r *memPostRepo) MarkFailed(ctx context.Context, postID int64, reason string) error {
	return r.release(postID, models.PostStatusFailed, "", reason)
}

func (r *memPostRepo) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusPublished && p.ExternalPostID != "" && !p.UpdatedAt.Before(since) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type memMediaRepo struct {
	mu     sync.Mutex
	nextID int64
	assets map[int64]*models.MediaAsset
	links  map[int64][]models.PostMedia
}

func newMemMediaRepo() *memMediaRepo {
	return &memMediaRepo{nextID: 1, assets: map[int64]*models.MediaAsset{}, links: map[int64][]models.PostMedia{}}
}

func (r *memMediaRepo) attach(postID int64, assets ...*models.MediaAsset) {
	for i, a := range assets {
		id, _ := r.CreateAsset(a)
		_ = r.Create(context.Background(), nil, &models.PostMedia{PostID: postID, AssetID: id, DisplayOrder: i})
	}
}

func (r *memMediaRepo) CreateAsset(ma *models.MediaAsset) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ma.ID = r.nextID
	r.nextID++
	r.assets[ma.ID] = ma
	return ma.ID, nil
}

// mediaAssets adapts memMediaRepo to repository.MediaAssetRepository.
type mediaAssets struct{ *memMediaRepo }

func (m mediaAssets) Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error) {
	return m.CreateAsset(ma)
}

func (m mediaAssets) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assets[id], nil
}

func (r *memMediaRepo) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[pm.PostID] = append(r.links[pm.PostID], *pm)
	return nil
}

func (r *memMediaRepo) ListAssetsByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	links := append([]models.PostMedia(nil), r.links[postID]...)
	sort.Slice(links, func(i, j int) bool { return links[i].DisplayOrder < links[j].DisplayOrder })
	var out []*models.MediaAsset
	for _, l := range links {
		out = append(out, r.assets[l.AssetID])
	}
	return out, nil
}

func (r *memMediaRepo) RemoveByPostID(ctx context.Context, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, postID)
	return nil
}

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
}

func newMemAccountRepo(accounts ...*models.SocialAccount) *memAccountRepo {
	r := &memAccountRepo{accounts: map[int64]*models.SocialAccount{}}
	for _, a := range accounts {
		r.accounts[a.UserID] = a
	}
	return r
}

func (r *memAccountRepo) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sa.ID == 0 {
		sa.ID = int64(len(r.accounts) + 1)
	}
	r.accounts[sa.UserID] = sa
	return sa.ID, nil
}

func (r *memAccountRepo) GetByUserID(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok || a.Platform != platform {
		return nil, nil
	}
	return a, nil
}

func (r *memAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	a, _ := r.GetByUserID(ctx, userID, models.PlatformInstagram)
	if a == nil {
		return nil, nil
	}
	return []*models.SocialAccount{a}, nil
}

func (r *memAccountRepo) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if !a.TokenExpiresAt.Before(initialTime) && a.TokenExpiresAt.Before(finalTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	return ok && a.ID == accountID, nil
}

func (r *memAccountRepo) SetToken(ctx context.Context, userID int64, oldAccessToken string, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok || a.AccessToken != oldAccessToken {
		return sql.ErrNoRows
	}
	a.AccessToken = sa.AccessToken
	a.TokenExpiresAt = sa.TokenExpiresAt
	return nil
}

func (r *memAccountRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, a := range r.accounts {
		if a.ID == id {
			delete(r.accounts, uid)
		}
	}
	return nil
}

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.PublishAttempt
}

func (r *memAttemptRepo) Create(ctx context.Context, pa *models.PublishAttempt) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, pa)
	pa.ID = int64(len(r.attempts))
	return pa.ID, nil
}

func (r *memAttemptRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PublishAttempt
	for _, a := range r.attempts {
		if a.PostID == postID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeInsightRepo struct {
	samples  []models.EngagementSample
	upserted []*models.PostInsight
}

func (r *fakeInsightRepo) ListRecentPublished(ctx context.Context, userID int64, limit int) ([]models.EngagementSample, error) {
	if len(r.samples) > limit {
		return r.samples[:limit], nil
	}
	return r.samples, nil
}

func (r *fakeInsightRepo) Upsert(ctx context.Context, insight *models.PostInsight) error {
	r.upserted = append(r.upserted, insight)
	return nil
}

// fakeAdapter records publish calls and returns the configured outcome.
type fakeAdapter struct {
	mu         sync.Mutex
	calls      int
	externalID string
	err        error
	block      chan struct{}
}

func (a *fakeAdapter) Publish(ctx context.Context, post *models.Post, account *models.SocialAccount) (string, error) {
	a.mu.Lock()
	a.calls++
	block := a.block
	a.mu.Unlock()
	if block != nil {
		<-block
	}
	return a.externalID, a.err
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeScheduler records enqueued deliveries.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

type scheduledJob struct {
	PostID    int64
	Version   int64
	DeliverAt time.Time
}

func (q *fakeScheduler) EnqueuePost(ctx context.Context, postID, version int64, deliverAt time.Time) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, scheduledJob{PostID: postID, Version: version, DeliverAt: deliverAt})
	return "job-" + strconv.Itoa(len(q.jobs)), nil
}
