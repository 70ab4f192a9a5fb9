package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var allowedMediaTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpg": {}, "png": {}, "webp": {},
}

type PostService interface {
	CreatePost(ctx context.Context, actor Actor, pc *transfer.PostCreation, files []*multipart.FileHeader) (*models.Post, *transfer.ScheduleResult, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
	Submit(ctx context.Context, actor Actor, postID int64) (*models.Post, error)
	Approve(ctx context.Context, actor Actor, postID int64, scheduledAt *time.Time) (*models.Post, *transfer.ScheduleResult, error)
	Reject(ctx context.Context, actor Actor, postID int64) (*models.Post, error)
}

type postService struct {
	db    *sql.DB
	pr    repository.PostRepository
	ma    repository.MediaAssetRepository
	pm    repository.PostMediaRepository
	pa    repository.PublishAttemptRepository
	store MediaStore
	sched SchedulingService
	queue Scheduler
	gate  *approval.Gate
	loc   *time.Location
	now   func() time.Time
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ma repository.MediaAssetRepository,
	pm repository.PostMediaRepository,
	pa repository.PublishAttemptRepository,
	store MediaStore,
	sched SchedulingService,
	queue Scheduler,
	gate *approval.Gate,
	loc *time.Location) PostService {
	if loc == nil {
		loc = time.UTC
	}
	return &postService{
		db:    db,
		pr:    pr,
		ma:    ma,
		pm:    pm,
		pa:    pa,
		store: store,
		sched: sched,
		queue: queue,
		gate:  gate,
		loc:   loc,
		now:   time.Now,
	}
}

// CreatePost stores a new post. Without a schedule date it starts as DRAFT;
// with one it starts APPROVED and its delivery is enqueued before the
// transaction commits.
func (s *postService) CreatePost(ctx context.Context, actor Actor, pc *transfer.PostCreation, files []*multipart.FileHeader) (*models.Post, *transfer.ScheduleResult, error) {
	if pc == nil {
		return nil, nil, apperror.Validation("post data is missing")
	}
	if strings.TrimSpace(pc.Content) == "" {
		return nil, nil, apperror.Validation("content cannot be empty")
	}
	if len(files) > maxCarouselItems {
		return nil, nil, apperror.Validation(fmt.Sprintf("at most %d media files per post", maxCarouselItems))
	}

	format, err := resolveFormat(pc.Format, files)
	if err != nil {
		return nil, nil, err
	}

	post := &models.Post{
		UserID:   actor.UserID,
		TeamID:   pc.TeamID,
		Title:    pc.Title,
		Content:  pc.Content,
		Hashtags: pc.Hashtags,
		Format:   format,
		Status:   models.InitialStatus(pc.ScheduledAt != nil),
	}

	if pc.ScheduledAt != nil {
		when := *pc.ScheduledAt
		if now := s.now(); !when.After(now) {
			return nil, nil, apperror.InvalidSchedule(fmt.Sprintf("%s is not after %s", when.Format(time.RFC3339), now.Format(time.RFC3339)))
		}
		if _, err := s.gate.Authorize(actor.Role, approval.ActionSchedule, models.PostStatusDraft); err != nil {
			return nil, nil, err
		}
		post.ScheduledTime = &when
		post.ScheduleVersion = 1
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post.ID, err = s.pr.Create(ctx, tx, post)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating post: %w", err)
	}

	post.Media, err = s.processFiles(ctx, tx, actor.UserID, post.ID, files)
	if err != nil {
		return nil, nil, err
	}

	var scheduled *transfer.ScheduleResult
	if post.ScheduledTime != nil {
		var jobID string
		jobID, err = s.queue.EnqueuePost(ctx, post.ID, post.ScheduleVersion, *post.ScheduledTime)
		if err != nil {
			return nil, nil, err
		}
		scheduled = &transfer.ScheduleResult{
			PostID:      post.ID,
			ScheduledAt: *post.ScheduledTime,
			Version:     post.ScheduleVersion,
			JobID:       jobID,
			Message:     ScheduledMessage(*post.ScheduledTime, s.loc),
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("post created", "post_id", post.ID, "status", post.Status, "media", len(post.Media))
	return post, scheduled, nil
}

func resolveFormat(requested string, files []*multipart.FileHeader) (models.PostFormat, error) {
	if requested != "" {
		f := models.PostFormat(requested)
		if !f.Valid() {
			return "", apperror.Validation(fmt.Sprintf("unknown post format %q", requested))
		}
		return f, nil
	}

	switch {
	case len(files) > 1:
		return models.PostFormatCarousel, nil
	case len(files) == 1 && strings.HasPrefix(files[0].Header.Get("Content-Type"), "video/"):
		return models.PostFormatShortVideo, nil
	default:
		return models.PostFormatSingleImage, nil
	}
}

func (s *postService) processFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader) ([]*models.MediaAsset, error) {
	assets := make([]*models.MediaAsset, 0, len(files))

	for i, file := range files {
		fileBytes, err := readFile(file)
		if err != nil {
			return nil, err
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return nil, apperror.Validation(fmt.Sprintf("unsupported file type for %s", file.Filename))
		}
		if _, ok := allowedMediaTypes[fileType.Extension]; !ok {
			return nil, apperror.Validation(fmt.Sprintf("file type %s is not allowed", fileType.Extension))
		}

		asset, err := s.saveFile(ctx, tx, userID, fileType.MIME.Value, fileBytes)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      asset.ID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return nil, fmt.Errorf("error saving media file: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}
	return b, nil
}

func (s *postService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, fileType string, file []byte) (*models.MediaAsset, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	fileURL, err := s.store.Upload(ctx, id, file, fileType)
	if err != nil {
		return nil, err
	}

	ma := &models.MediaAsset{
		UserID:   userID,
		FileName: id,
		FileType: fileType,
		FileSize: int64(len(file)),
		FileURL:  fileURL,
	}

	ma.ID, err = s.ma.Create(ctx, tx, ma)
	if err != nil {
		return nil, err
	}
	return ma, nil
}

func (s *postService) ownedPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	if userID == 0 || postID == 0 {
		return nil, apperror.NotFound("post not found")
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("Error getting post info: %w", err)
	}
	if post == nil || post.UserID != userID {
		return nil, apperror.NotFound("post not found")
	}
	return post, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	post.Media, err = s.pm.ListAssetsByPostID(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("Error getting post media: %w", err)
	}

	post.Attempts, err = s.pa.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("Error getting publish attempts: %w", err)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting posts: %w", err)
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if post.Status == models.PostStatusPublishing {
		return apperror.Conflict("post is being published and cannot be removed", nil)
	}

	if err := s.pm.RemoveByPostID(ctx, post.ID); err != nil {
		return fmt.Errorf("Error removing post media: %w", err)
	}
	if err := s.pr.Remove(ctx, post.ID); err != nil {
		return fmt.Errorf("Error removing post: %w", err)
	}
	return nil
}

func (s *postService) Submit(ctx context.Context, actor Actor, postID int64) (*models.Post, error) {
	return s.move(ctx, actor, postID, approval.ActionSubmit)
}

func (s *postService) Reject(ctx context.Context, actor Actor, postID int64) (*models.Post, error) {
	return s.move(ctx, actor, postID, approval.ActionReject)
}

// Approve moves the post to APPROVED. When scheduledAt is given the post is
// scheduled in the same step.
func (s *postService) Approve(ctx context.Context, actor Actor, postID int64, scheduledAt *time.Time) (*models.Post, *transfer.ScheduleResult, error) {
	if scheduledAt == nil {
		post, err := s.move(ctx, actor, postID, approval.ActionApprove)
		return post, nil, err
	}

	post, err := s.ownedPost(ctx, actor.UserID, postID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.gate.Authorize(actor.Role, approval.ActionApprove, post.Status); err != nil {
		return nil, nil, err
	}

	scheduled, err := s.sched.ScheduleExplicit(ctx, actor, postID, *scheduledAt)
	if err != nil {
		return nil, nil, err
	}

	post, err = s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	return post, scheduled, nil
}

func (s *postService) move(ctx context.Context, actor Actor, postID int64, action approval.Action) (*models.Post, error) {
	post, err := s.ownedPost(ctx, actor.UserID, postID)
	if err != nil {
		return nil, err
	}

	to, err := s.gate.Authorize(actor.Role, action, post.Status)
	if err != nil {
		return nil, err
	}

	ok, err := s.pr.TransitionStatus(ctx, post.ID, []models.PostStatus{post.Status}, to)
	if err != nil {
		return nil, fmt.Errorf("update post status: %w", err)
	}
	if !ok {
		return nil, apperror.Conflict("post status changed concurrently; reload and retry", nil)
	}

	slog.Info("post status changed", "post_id", post.ID, "from", post.Status, "to", to, "action", action, "role", actor.Role)

	updated, err := s.pr.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, errors.New("post disappeared after status change")
	}
	return updated, nil
}
