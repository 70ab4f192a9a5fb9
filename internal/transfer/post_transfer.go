package transfer

import "time"

type PostCreation struct {
	Title       string     `json:"title" form:"title" validate:"max=200"`
	Content     string     `json:"content" form:"content" validate:"required"`
	Hashtags    string     `json:"hashtags" form:"hashtags"`
	Format      string     `json:"format" form:"format" validate:"omitempty,oneof=single_image carousel short_video ad"`
	TeamID      *int64     `json:"teamId,omitempty" form:"team_id"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty" form:"-"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

type ApproveRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type ScheduleResult struct {
	PostID      int64     `json:"postId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Version     int64     `json:"version"`
	JobID       string    `json:"jobId"`
	Message     string    `json:"message"`
}

type PublishResult struct {
	PostID         int64  `json:"postId"`
	Status         string `json:"status"`
	Simulated      bool   `json:"simulated"`
	Skipped        bool   `json:"skipped,omitempty"`
	ExternalPostID string `json:"externalPostId,omitempty"`
	Message        string `json:"message"`
}

type SuggestedTime struct {
	SuggestedTime   string  `json:"suggestedTime"`
	Hour            int     `json:"hour"`
	Reason          string  `json:"reason"`
	EngagementScore float64 `json:"engagementScore"`
}

type WebhookDelivery struct {
	PostID  string `json:"postId"`
	Version int64  `json:"version"`
}

type GenerateRequest struct {
	Topic  string `json:"topic" validate:"required,max=500"`
	Tone   string `json:"tone" validate:"omitempty,max=50"`
	Format string `json:"format" validate:"omitempty,oneof=single_image carousel short_video ad"`
}

type GeneratedContent struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Hashtags    string `json:"hashtags"`
	Placeholder bool   `json:"placeholder,omitempty"`
}
