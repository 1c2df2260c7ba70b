// Package chat owns comment and ban persistence rules for livestream chat.
package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"livestream-chat/internal/errs"
	"livestream-chat/internal/models"
	"livestream-chat/internal/observability"
	"livestream-chat/internal/repositories"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	DefaultMaxContent   = 500
)

// Options tunes the service.
type Options struct {
	HistoryLimit     int
	MaxContentLength int
}

// CreateCommentInput is a request to post a comment.
type CreateCommentInput struct {
	LivestreamID string
	UserID       string
	Content      string
	ParentID     *string
}

// Service is the sole writer of comments and bans.
type Service struct {
	livestreams repositories.LivestreamRepository
	comments    repositories.CommentRepository
	bans        repositories.BanRepository
	opts        Options
	newID       func() string
}

// NewService wires the service to its repositories.
func NewService(livestreams repositories.LivestreamRepository, comments repositories.CommentRepository, bans repositories.BanRepository, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContent
	}
	return &Service{
		livestreams: livestreams,
		comments:    comments,
		bans:        bans,
		opts:        opts,
		newID:       uuid.NewString,
	}
}

// HistoryLimit is the default number of comments replayed on join.
func (s *Service) HistoryLimit() int {
	return s.opts.HistoryLimit
}

// IsLivestreamValid reports existence and the chat flag. A missing
// livestream is not an error.
func (s *Service) IsLivestreamValid(ctx context.Context, livestreamID string) (models.LivestreamStatus, error) {
	ls, err := s.livestreams.GetLivestream(ctx, livestreamID)
	if errors.Is(err, repositories.ErrLivestreamNotFound) {
		return models.LivestreamStatus{}, nil
	}
	if err != nil {
		return models.LivestreamStatus{}, errs.Transient("failed to load livestream", err)
	}
	return models.LivestreamStatus{Exists: true, ChatEnabled: ls.ChatEnabled, ChannelID: ls.ChannelID}, nil
}

// IsUserBanned checks the ban row for (livestreamID, userID).
func (s *Service) IsUserBanned(ctx context.Context, livestreamID, userID string) (bool, error) {
	banned, err := s.bans.IsBanned(ctx, livestreamID, userID)
	if err != nil {
		return false, errs.Transient("failed to check ban", err)
	}
	return banned, nil
}

// CheckParticipation runs the checks gating join and send, in order:
// existence, chat enabled, ban.
func (s *Service) CheckParticipation(ctx context.Context, livestreamID, userID string) error {
	status, err := s.IsLivestreamValid(ctx, livestreamID)
	if err != nil {
		return err
	}
	if !status.Exists {
		return errs.ErrLivestreamNotFound
	}
	if !status.ChatEnabled {
		return errs.ErrChatDisabled
	}
	banned, err := s.IsUserBanned(ctx, livestreamID, userID)
	if err != nil {
		return err
	}
	if banned {
		return errs.ErrBanned
	}
	return nil
}

// CreateComment validates and persists a comment. Nothing is stored when
// any rule fails.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (models.Comment, error) {
	comment, err := s.createComment(ctx, in)
	if err != nil {
		observability.IncComment(errs.As(err).Code)
		return models.Comment{}, err
	}
	observability.IncComment("created")
	return comment, nil
}

func (s *Service) createComment(ctx context.Context, in CreateCommentInput) (models.Comment, error) {
	content, err := s.normalizeContent(in.Content)
	if err != nil {
		return models.Comment{}, err
	}
	if err := s.CheckParticipation(ctx, in.LivestreamID, in.UserID); err != nil {
		return models.Comment{}, err
	}

	var parentID *string
	if in.ParentID != nil && *in.ParentID != "" {
		if err := s.checkParent(ctx, in.LivestreamID, *in.ParentID); err != nil {
			return models.Comment{}, err
		}
		id := *in.ParentID
		parentID = &id
	}

	comment, err := s.comments.CreateComment(ctx, models.NewComment{
		ID:           s.newID(),
		LivestreamID: in.LivestreamID,
		UserID:       in.UserID,
		Content:      content,
		ParentID:     parentID,
	})
	if err != nil {
		return models.Comment{}, errs.Transient("failed to save comment", err)
	}
	return comment, nil
}

func (s *Service) normalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", errs.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return "", errs.ErrContentTooLong
	}
	return content, nil
}

// checkParent enforces one level of nesting. A parent in another livestream
// counts as missing.
func (s *Service) checkParent(ctx context.Context, livestreamID, parentID string) error {
	if _, err := uuid.Parse(parentID); err != nil {
		return errs.ErrParentNotFound
	}
	parent, err := s.comments.GetComment(ctx, parentID)
	if errors.Is(err, repositories.ErrCommentNotFound) {
		return errs.ErrParentNotFound
	}
	if err != nil {
		return errs.Transient("failed to load parent comment", err)
	}
	if parent.IsDeleted() || parent.LivestreamID != livestreamID {
		return errs.ErrParentNotFound
	}
	if parent.IsReply() {
		return errs.ErrCannotNest
	}
	return nil
}

// GetComment loads a comment in any status.
func (s *Service) GetComment(ctx context.Context, commentID string) (models.Comment, error) {
	if _, err := uuid.Parse(commentID); err != nil {
		return models.Comment{}, errs.ErrCommentNotFound
	}
	comment, err := s.comments.GetComment(ctx, commentID)
	if errors.Is(err, repositories.ErrCommentNotFound) {
		return models.Comment{}, errs.ErrCommentNotFound
	}
	if err != nil {
		return models.Comment{}, errs.Transient("failed to load comment", err)
	}
	return comment, nil
}

// GetRecentComments returns up to limit active comments in chronological
// order. A non-positive limit uses the configured default.
func (s *Service) GetRecentComments(ctx context.Context, livestreamID string, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	comments, err := s.comments.ListRecentComments(ctx, livestreamID, limit)
	if err != nil {
		return nil, errs.Transient("failed to load comments", err)
	}
	for i, j := 0, len(comments)-1; i < j; i, j = i+1, j-1 {
		comments[i], comments[j] = comments[j], comments[i]
	}
	return comments, nil
}

// DeleteComment soft-deletes a comment and returns it so callers know its
// livestream. Replies are untouched. Deleting twice is not an error.
func (s *Service) DeleteComment(ctx context.Context, commentID string) (models.Comment, error) {
	comment, err := s.GetComment(ctx, commentID)
	if err != nil {
		return models.Comment{}, err
	}
	if comment.IsDeleted() {
		return comment, nil
	}

	err = s.comments.SoftDeleteComment(ctx, commentID)
	if errors.Is(err, repositories.ErrCommentNotFound) {
		return models.Comment{}, errs.ErrCommentNotFound
	}
	if err != nil {
		return models.Comment{}, errs.Transient("failed to delete comment", err)
	}
	comment.Status = models.CommentDeleted
	return comment, nil
}

// BanUser stores a ban. A duplicate, including one lost to a concurrent
// insert, returns errs.ErrAlreadyBanned.
func (s *Service) BanUser(ctx context.Context, livestreamID, userID, bannedBy string, reason *string) error {
	if livestreamID == "" || userID == "" {
		return errs.BadRequest("livestreamId and userId are required")
	}
	status, err := s.IsLivestreamValid(ctx, livestreamID)
	if err != nil {
		return err
	}
	if !status.Exists {
		return errs.ErrLivestreamNotFound
	}

	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		reason = &trimmed
		if trimmed == "" {
			reason = nil
		}
	}

	err = s.bans.CreateBan(ctx, models.Ban{
		LivestreamID: livestreamID,
		UserID:       userID,
		BannedBy:     bannedBy,
		Reason:       reason,
	})
	if errors.Is(err, repositories.ErrAlreadyBanned) {
		return errs.ErrAlreadyBanned
	}
	if err != nil {
		return errs.Transient("failed to save ban", err)
	}
	return nil
}

// UnbanUser removes a ban. Unbanning a user who is not banned is a no-op.
func (s *Service) UnbanUser(ctx context.Context, livestreamID, userID string) error {
	if livestreamID == "" || userID == "" {
		return errs.BadRequest("livestreamId and userId are required")
	}
	err := s.bans.DeleteBan(ctx, livestreamID, userID)
	if err != nil && !errors.Is(err, repositories.ErrBanNotFound) {
		return errs.Transient("failed to delete ban", err)
	}
	return nil
}

// ListBans returns the bans of a livestream, newest first.
func (s *Service) ListBans(ctx context.Context, livestreamID string) ([]models.Ban, error) {
	bans, err := s.bans.ListBans(ctx, livestreamID)
	if err != nil {
		return nil, errs.Transient("failed to load bans", err)
	}
	return bans, nil
}
