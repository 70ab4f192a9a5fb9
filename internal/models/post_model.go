package models

import "time"

type Post struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	TeamID          *int64     `db:"team_id" json:"team_id,omitempty"`
	Title           string     `db:"title" json:"title"`
	Content         string     `db:"content" json:"content"`
	Hashtags        string     `db:"hashtags" json:"hashtags"`
	Format          PostFormat `db:"format" json:"format"`
	Status          PostStatus `db:"status" json:"status"`
	ScheduledTime   *time.Time `db:"scheduled_time" json:"scheduled_time,omitempty"`
	ScheduleVersion int64      `db:"schedule_version" json:"schedule_version"`
	LastError       string     `db:"last_error" json:"last_error,omitempty"`
	ExternalPostID  string     `db:"external_post_id" json:"external_post_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	Media    []*MediaAsset     `db:"-" json:"media,omitempty"`
	Attempts []*PublishAttempt `db:"-" json:"attempts,omitempty"`
}

// PrimaryMedia is the first media item by display order, or nil.
func (p *Post) PrimaryMedia() *MediaAsset {
	if len(p.Media) == 0 {
		return nil
	}
	return p.Media[0]
}

type PostFormat string

const (
	PostFormatSingleImage PostFormat = "single_image"
	PostFormatCarousel    PostFormat = "carousel"
	PostFormatShortVideo  PostFormat = "short_video"
	PostFormatAd          PostFormat = "ad"
)

func (f PostFormat) Valid() bool {
	switch f {
	case PostFormatSingleImage, PostFormatCarousel, PostFormatShortVideo, PostFormatAd:
		return true
	}
	return false
}

type MediaAsset struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FileType     string    `db:"file_type" json:"file_type"`
	FileSize     int64     `db:"file_size" json:"file_size"`
	FileURL      string    `db:"file_url" json:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsVideo reports whether the asset should be sent to the platform as video.
func (m *MediaAsset) IsVideo() bool {
	return len(m.FileType) >= 6 && m.FileType[:6] == "video/"
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}
