package models

import "time"

// EngagementSample is the read-only engagement aggregate of one published post.
type EngagementSample struct {
	PostID      int64     `db:"post_id" json:"post_id"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
	Likes       int64     `db:"likes" json:"likes"`
	Comments    int64     `db:"comments" json:"comments"`
	Saves       int64     `db:"saves" json:"saves"`
}

// Score weights comments and saves above likes.
func (e EngagementSample) Score() int64 {
	return e.Likes + 3*e.Comments + 2*e.Saves
}

type PostInsight struct {
	PostID    int64     `db:"post_id" json:"post_id"`
	Likes     int64     `db:"likes" json:"likes"`
	Comments  int64     `db:"comments" json:"comments"`
	Saves     int64     `db:"saves" json:"saves"`
	FetchedAt time.Time `db:"fetched_at" json:"fetched_at"`
}
