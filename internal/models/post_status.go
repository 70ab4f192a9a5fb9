package models

import "fmt"

type PostStatus string

const (
	PostStatusDraft           PostStatus = "DRAFT"
	PostStatusPendingApproval PostStatus = "PENDING_APPROVAL"
	PostStatusApproved        PostStatus = "APPROVED"
	PostStatusPublishing      PostStatus = "PUBLISHING"
	PostStatusPublished       PostStatus = "PUBLISHED"
	PostStatusFailed          PostStatus = "FAILED"
)

// transitions lists every legal move. PUBLISHING is only entered through a
// conditional update and is always released to PUBLISHED or FAILED.
var transitions = map[PostStatus][]PostStatus{
	PostStatusDraft:           {PostStatusPendingApproval, PostStatusApproved, PostStatusPublishing},
	PostStatusPendingApproval: {PostStatusDraft, PostStatusApproved, PostStatusPublishing},
	PostStatusApproved:        {PostStatusApproved, PostStatusPublishing},
	PostStatusPublishing:      {PostStatusPublished, PostStatusFailed},
}

// PublishableStatuses are the states a publish attempt may claim a post from.
var PublishableStatuses = []PostStatus{PostStatusDraft, PostStatusPendingApproval, PostStatusApproved}

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusPendingApproval, PostStatusApproved,
		PostStatusPublishing, PostStatusPublished, PostStatusFailed:
		return true
	}
	return false
}

func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPublished || s == PostStatusFailed
}

// IsSchedulable reports whether a post in this state may receive a schedule date.
func (s PostStatus) IsSchedulable() bool {
	return s == PostStatusDraft || s == PostStatusPendingApproval || s == PostStatusApproved
}

type TransitionError struct {
	From PostStatus
	To   PostStatus
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("post is %s and can no longer change status", e.From)
	}
	return fmt.Sprintf("cannot move post from %s to %s", e.From, e.To)
}

// Transition validates a status change. It is the only place legality is decided.
func Transition(from, to PostStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// InitialStatus is the status a freshly saved post starts in.
func InitialStatus(scheduled bool) PostStatus {
	if scheduled {
		return PostStatusApproved
	}
	return PostStatusDraft
}
