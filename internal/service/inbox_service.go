// Package service holds the inbox use cases. It is the only layer that
// decides who may read or manage a conversation; repositories trust it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ridehail/internal/cache"
	"ridehail/internal/featureflags"
	"ridehail/internal/models"
	"ridehail/internal/observability"
	"ridehail/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const serviceName = "inbox"

// Access-denial reasons recorded in observability.AccessDenied.
const (
	deniedNotOwner       = "not_owner"
	deniedNotParticipant = "not_participant"
	deniedNotSender      = "not_sender"
)

// ListResult is one page of items plus the pagination total reported to
// clients.
type ListResult[T any] struct {
	Items []T
	Total int64
}

// CreateConversationInput is a caller's request to open a conversation they
// will own.
type CreateConversationInput struct {
	ConversationType models.ConversationType
	TitleAr          string
	TitleEn          string
	Participants     []repository.ParticipantInput
}

// SendMessageInput is the body of a send. The text triplet is required.
type SendMessageInput struct {
	MessageType  models.MessageType
	MessageText  *string
	MessageAr    *string
	MessageEn    *string
	MediaURL     *string
	MediaType    *string
	FileSize     *int64
	LocationData json.RawMessage
}

// Options tunes InboxService.
type Options struct {
	UnreadCacheTTL time.Duration
}

// InboxService orchestrates the participant registry, message store and
// conversation directory for the HTTP gateway.
type InboxService struct {
	tx            repository.Transactor
	conversations repository.ConversationRepository
	participants  repository.ParticipantRepository
	messages      repository.MessageRepository
	rdb           *redis.Client
	flags         *featureflags.Manager
	opts          Options
}

// NewInboxService returns a new InboxService. rdb and flags may be nil.
func NewInboxService(
	tx repository.Transactor,
	conversations repository.ConversationRepository,
	participants repository.ParticipantRepository,
	messages repository.MessageRepository,
	rdb *redis.Client,
	flags *featureflags.Manager,
	opts Options,
) *InboxService {
	if opts.UnreadCacheTTL <= 0 {
		opts.UnreadCacheTTL = cache.UnreadTTL
	}
	return &InboxService{
		tx:            tx,
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		rdb:           rdb,
		flags:         flags,
		opts:          opts,
	}
}

func denied(ctx context.Context, reason, method, userID, resourceID string) error {
	observability.AccessDenied.WithLabelValues(reason).Inc()
	observability.LogServiceError(ctx, serviceName, method, errors.New(reason),
		slog.String("user_id", userID), slog.String("resource_id", resourceID))
	switch reason {
	case deniedNotOwner:
		return models.NewForbiddenError("Only the conversation owner can perform this action")
	case deniedNotSender:
		return models.NewForbiddenError("Only the sender can modify this message")
	default:
		return models.NewForbiddenError("You are not a participant in this conversation")
	}
}

// requireParticipant checks active membership of userID in conversationID.
func (s *InboxService) requireParticipant(ctx context.Context, method, userID, conversationID string) error {
	ok, err := s.participants.IsParticipant(ctx, conversationID, userID, true)
	if err != nil {
		return err
	}
	if !ok {
		return denied(ctx, deniedNotParticipant, method, userID, conversationID)
	}
	return nil
}

// readable resolves a conversation the caller may read: 404 first, then 403.
func (s *InboxService) readable(ctx context.Context, method, userID, conversationID string) (*models.InboxConversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, method, userID, conversationID); err != nil {
		return nil, err
	}
	return conv, nil
}

// owned resolves a conversation the caller may manage: 404 first, then 403.
func (s *InboxService) owned(ctx context.Context, method, userID, conversationID string) (*models.InboxConversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerUserID != userID {
		return nil, denied(ctx, deniedNotOwner, method, userID, conversationID)
	}
	return conv, nil
}

// messageInReadableRoom resolves a message whose room the caller belongs to.
func (s *InboxService) messageInReadableRoom(ctx context.Context, method, userID, messageID string) (*models.ChatMessage, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, method, userID, msg.RoomID); err != nil {
		return nil, err
	}
	return msg, nil
}

// total reports the pagination total: the page length unless exact totals
// are enabled for the caller.
func (s *InboxService) total(userID string, pageLen int, count func() (int64, error)) (int64, error) {
	if !s.flags.Enabled(featureflags.ExactPaginationTotal, userID) {
		return int64(pageLen), nil
	}
	return count()
}

func (s *InboxService) invalidateUnread(ctx context.Context, userIDs ...string) {
	cache.InvalidateUnread(ctx, s.rdb, userIDs...)
}

// ListConversations lists the caller's own inbox entries.
func (s *InboxService) ListConversations(ctx context.Context, userID string, f repository.ConversationFilter) (*ListResult[models.InboxConversation], error) {
	items, err := s.conversations.FindByUserID(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	total, err := s.total(userID, len(items), func() (int64, error) {
		return s.conversations.CountByUserID(ctx, userID, f)
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[models.InboxConversation]{Items: items, Total: total}, nil
}

// CreateConversation opens a conversation owned by the caller. The caller is
// always an active participant.
func (s *InboxService) CreateConversation(ctx context.Context, userID string, in CreateConversationInput) (conv *models.InboxConversation, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, serviceName, "CreateConversation",
		attribute.String("conversation.type", string(in.ConversationType)))
	defer func() { finish(err) }()
	observability.LogServiceCall(ctx, serviceName, "CreateConversation", slog.String("user_id", userID))

	conv, err = s.conversations.Create(ctx, repository.CreateConversationInput{
		OwnerUserID:      userID,
		ConversationType: in.ConversationType,
		TitleAr:          in.TitleAr,
		TitleEn:          in.TitleEn,
		Participants:     in.Participants,
	})
	if err != nil {
		return nil, err
	}
	observability.ConversationsCreated.WithLabelValues(string(conv.ConversationType)).Inc()
	return conv, nil
}

// GetConversation is open to any active participant, not only the owner.
func (s *InboxService) GetConversation(ctx context.Context, userID, conversationID string) (*models.InboxConversation, error) {
	return s.readable(ctx, "GetConversation", userID, conversationID)
}

// UpdateConversation edits titles or type. Owner only.
func (s *InboxService) UpdateConversation(ctx context.Context, userID, conversationID string, in repository.ConversationUpdate) (*models.InboxConversation, error) {
	if _, err := s.owned(ctx, "UpdateConversation", userID, conversationID); err != nil {
		return nil, err
	}
	return s.conversations.Update(ctx, conversationID, in)
}

func (s *InboxService) manage(ctx context.Context, method, userID, conversationID string, op func(context.Context, string) error) error {
	if _, err := s.owned(ctx, method, userID, conversationID); err != nil {
		return err
	}
	observability.LogServiceCall(ctx, serviceName, method,
		slog.String("user_id", userID), slog.String("conversation_id", conversationID))
	if err := op(ctx, conversationID); err != nil {
		return err
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

func (s *InboxService) ArchiveConversation(ctx context.Context, userID, conversationID string) error {
	return s.manage(ctx, "ArchiveConversation", userID, conversationID, s.conversations.Archive)
}

func (s *InboxService) UnarchiveConversation(ctx context.Context, userID, conversationID string) error {
	return s.manage(ctx, "UnarchiveConversation", userID, conversationID, s.conversations.Unarchive)
}

func (s *InboxService) MuteConversation(ctx context.Context, userID, conversationID string) error {
	return s.manage(ctx, "MuteConversation", userID, conversationID, s.conversations.Mute)
}

func (s *InboxService) UnmuteConversation(ctx context.Context, userID, conversationID string) error {
	return s.manage(ctx, "UnmuteConversation", userID, conversationID, s.conversations.Unmute)
}

// DeleteConversation removes the caller's directory row. Memberships and
// messages are left in place.
func (s *InboxService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	return s.manage(ctx, "DeleteConversation", userID, conversationID, s.conversations.Delete)
}

// ListMessages returns a page of the room, oldest first.
func (s *InboxService) ListMessages(ctx context.Context, userID, conversationID string, q repository.MessageQuery) (*ListResult[models.ChatMessage], error) {
	if _, err := s.readable(ctx, "ListMessages", userID, conversationID); err != nil {
		return nil, err
	}
	items, err := s.messages.FindByRoomID(ctx, conversationID, q)
	if err != nil {
		return nil, err
	}
	total, err := s.total(userID, len(items), func() (int64, error) {
		return s.messages.CountByRoomID(ctx, conversationID, q.Before)
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[models.ChatMessage]{Items: items, Total: total}, nil
}

func missingTextFields(in SendMessageInput) []string {
	var missing []string
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"messageText", in.MessageText},
		{"messageAr", in.MessageAr},
		{"messageEn", in.MessageEn},
	} {
		if f.v == nil || strings.TrimSpace(*f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// SendMessage appends a message to the room and updates the directory. The
// insert, delivery fan-out, preview and one unread increment per active
// participant other than the sender commit or roll back together.
func (s *InboxService) SendMessage(ctx context.Context, userID, conversationID string, in SendMessageInput) (msg *models.ChatMessage, err error) {
	if missing := missingTextFields(in); len(missing) > 0 {
		return nil, models.NewValidationError("Missing required fields: " + strings.Join(missing, ", "))
	}
	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}

	ctx, finish := observability.StartServiceSpan(ctx, serviceName, "SendMessage",
		attribute.String("conversation.id", conversationID), attribute.String("message.type", string(in.MessageType)))
	defer func() { finish(err) }()

	if _, err = s.readable(ctx, "SendMessage", userID, conversationID); err != nil {
		return nil, err
	}

	var recipients []string
	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		created, err := s.messages.WithTx(tx).Create(ctx, repository.CreateMessageInput{
			RoomID:       conversationID,
			SenderID:     userID,
			MessageType:  in.MessageType,
			MessageText:  in.MessageText,
			MessageAr:    in.MessageAr,
			MessageEn:    in.MessageEn,
			MediaURL:     in.MediaURL,
			MediaType:    in.MediaType,
			FileSize:     in.FileSize,
			LocationData: in.LocationData,
		})
		if err != nil {
			return err
		}
		msg = created

		conversations := s.conversations.WithTx(tx)
		if err := conversations.UpdateLastMessage(ctx, conversationID, *in.MessageAr, *in.MessageEn); err != nil {
			return err
		}

		recipients, err = s.participants.WithTx(tx).ActiveUserIDs(ctx, conversationID)
		if err != nil {
			return err
		}
		for _, uid := range recipients {
			if uid == userID {
				continue
			}
			if err := conversations.IncrementUnreadCount(ctx, conversationID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		observability.LogServiceError(ctx, serviceName, "SendMessage", err,
			slog.String("user_id", userID), slog.String("conversation_id", conversationID))
		return nil, err
	}

	observability.MessagesSent.WithLabelValues(string(msg.MessageType)).Inc()
	s.invalidateUnread(ctx, recipients...)
	return msg, nil
}

// GetMessage returns one message to a participant of its room.
func (s *InboxService) GetMessage(ctx context.Context, userID, messageID string) (*models.ChatMessage, error) {
	return s.messageInReadableRoom(ctx, "GetMessage", userID, messageID)
}

// UpdateMessage edits the text triplet. Only the sender may edit, and only
// while still a member of the room.
func (s *InboxService) UpdateMessage(ctx context.Context, userID, messageID string, in repository.MessageUpdate) (*models.ChatMessage, error) {
	msg, err := s.messageInReadableRoom(ctx, "UpdateMessage", userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, denied(ctx, deniedNotSender, "UpdateMessage", userID, messageID)
	}
	return s.messages.Update(ctx, messageID, in)
}

// DeleteMessage soft-deletes a message. Sender only.
func (s *InboxService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.messageInReadableRoom(ctx, "DeleteMessage", userID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return denied(ctx, deniedNotSender, "DeleteMessage", userID, messageID)
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	recipients, err := s.participants.ActiveUserIDs(ctx, msg.RoomID)
	if err != nil {
		observability.LogServiceError(ctx, serviceName, "DeleteMessage", err, slog.String("message_id", messageID))
		return nil
	}
	s.invalidateUnread(ctx, recipients...)
	return nil
}

// MarkMessageRead marks one message read for the caller and resets the
// conversation's aggregate unread counter.
func (s *InboxService) MarkMessageRead(ctx context.Context, userID, messageID string) (st *models.MessageStatus, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, serviceName, "MarkMessageRead", attribute.String("message.id", messageID))
	defer func() { finish(err) }()

	msg, err := s.messageInReadableRoom(ctx, "MarkMessageRead", userID, messageID)
	if err != nil {
		return nil, err
	}

	var owner string
	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		st, err = s.messages.WithTx(tx).UpdateMessageStatus(ctx, messageID, userID, models.DeliveryStatusRead)
		if err != nil {
			return err
		}
		owner, err = s.resetUnread(ctx, s.conversations.WithTx(tx), msg.RoomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	// The owner's directory sum changed too, even when someone else read.
	s.invalidateUnread(ctx, userID, owner)
	return st, nil
}

// resetUnread zeroes the directory counter and returns the row's owner. A
// room whose directory row was deleted has nothing to reset and no owner.
func (s *InboxService) resetUnread(ctx context.Context, conversations repository.ConversationRepository, conversationID string) (string, error) {
	conv, err := conversations.FindByID(ctx, conversationID)
	if models.IsCode(err, models.CodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if err := conversations.ResetUnreadCount(ctx, conversationID); err != nil {
		return "", err
	}
	observability.UnreadResets.Inc()
	return conv.OwnerUserID, nil
}

// MarkConversationRead marks every delivery row of the caller in the room as
// read, optionally only for messages older than before. The directory
// counter is reset when the caller owns the conversation.
func (s *InboxService) MarkConversationRead(ctx context.Context, userID, conversationID string, before *time.Time) (int64, error) {
	conv, err := s.readable(ctx, "MarkConversationRead", userID, conversationID)
	if err != nil {
		return 0, err
	}

	var marked int64
	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		n, err := s.messages.WithTx(tx).MarkAsRead(ctx, conversationID, userID, before)
		if err != nil {
			return err
		}
		marked = n
		if conv.OwnerUserID != userID {
			return nil
		}
		_, err = s.resetUnread(ctx, s.conversations.WithTx(tx), conversationID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.invalidateUnread(ctx, userID)
	return marked, nil
}

// GetMessageStatus returns the caller's delivery row for a message.
func (s *InboxService) GetMessageStatus(ctx context.Context, userID, messageID string) (*models.MessageStatus, error) {
	if _, err := s.messageInReadableRoom(ctx, "GetMessageStatus", userID, messageID); err != nil {
		return nil, err
	}
	return s.messages.GetMessageStatus(ctx, messageID, userID)
}

// UpdateMessageStatus sets the caller's delivery state for a message. Any
// transition is accepted.
func (s *InboxService) UpdateMessageStatus(ctx context.Context, userID, messageID string, status models.DeliveryStatus) (*models.MessageStatus, error) {
	if _, err := s.messageInReadableRoom(ctx, "UpdateMessageStatus", userID, messageID); err != nil {
		return nil, err
	}
	st, err := s.messages.UpdateMessageStatus(ctx, messageID, userID, status)
	if err != nil {
		return nil, err
	}
	s.invalidateUnread(ctx, userID)
	return st, nil
}

// SearchMessages searches one room the caller belongs to.
func (s *InboxService) SearchMessages(ctx context.Context, userID, conversationID, query string, page repository.Page) (*ListResult[models.ChatMessage], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	if _, err := s.readable(ctx, "SearchMessages", userID, conversationID); err != nil {
		return nil, err
	}
	items, err := s.messages.Search(ctx, conversationID, query, page)
	if err != nil {
		return nil, err
	}
	total, err := s.total(userID, len(items), func() (int64, error) {
		return s.messages.CountSearch(ctx, conversationID, query)
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[models.ChatMessage]{Items: items, Total: total}, nil
}

// MessageStatistics aggregates one room for a participant.
func (s *InboxService) MessageStatistics(ctx context.Context, userID, conversationID string) (*models.MessageStatistics, error) {
	if _, err := s.readable(ctx, "MessageStatistics", userID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.GetStatistics(ctx, conversationID)
}

// SearchConversations searches the caller's non-archived entries.
func (s *InboxService) SearchConversations(ctx context.Context, userID, query string, page repository.Page) (*ListResult[models.InboxConversation], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	items, err := s.conversations.Search(ctx, userID, query, page)
	if err != nil {
		return nil, err
	}
	total, err := s.total(userID, len(items), func() (int64, error) {
		return s.conversations.CountSearch(ctx, userID, query)
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[models.InboxConversation]{Items: items, Total: total}, nil
}

// UnreadSummary returns the caller's live unread message count and the
// directory sum over conversations they own. With the unread_cache flag on,
// the summary is served through Redis.
func (s *InboxService) UnreadSummary(ctx context.Context, userID string) (*models.UnreadSummary, error) {
	var summary models.UnreadSummary
	fetch := func() error {
		live, err := s.messages.CountUnreadForUser(ctx, userID)
		if err != nil {
			return err
		}
		owned, err := s.conversations.GetUnreadCount(ctx, userID)
		if err != nil {
			return err
		}
		summary = models.UnreadSummary{UnreadCount: live, ConversationUnreadCount: owned}
		return nil
	}

	if !s.flags.Enabled(featureflags.UnreadCache, userID) {
		if err := fetch(); err != nil {
			return nil, err
		}
		return &summary, nil
	}
	if err := cache.Aside(ctx, s.rdb, "unread", cache.UnreadKey(userID), &summary, s.opts.UnreadCacheTTL, fetch); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ConversationStatistics aggregates the caller's own conversations by type.
func (s *InboxService) ConversationStatistics(ctx context.Context, userID string) ([]models.ConversationTypeStats, error) {
	return s.conversations.GetStatistics(ctx, userID)
}

// ListParticipants lists members of a conversation the caller belongs to.
func (s *InboxService) ListParticipants(ctx context.Context, userID, conversationID string, q repository.ParticipantQuery) (*ListResult[models.ConversationParticipant], error) {
	if _, err := s.readable(ctx, "ListParticipants", userID, conversationID); err != nil {
		return nil, err
	}
	items, err := s.participants.FindByConversationID(ctx, conversationID, q)
	if err != nil {
		return nil, err
	}
	total, err := s.total(userID, len(items), func() (int64, error) {
		return s.participants.CountByConversationID(ctx, conversationID, q.ActiveOnly)
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[models.ConversationParticipant]{Items: items, Total: total}, nil
}

// AddParticipants adds or reactivates members. Owner only.
func (s *InboxService) AddParticipants(ctx context.Context, userID, conversationID string, in []repository.ParticipantInput) ([]models.ConversationParticipant, error) {
	if len(in) == 0 {
		return nil, models.NewValidationError("At least one participant is required")
	}
	if _, err := s.owned(ctx, "AddParticipants", userID, conversationID); err != nil {
		return nil, err
	}
	added, err := s.participants.BulkAdd(ctx, conversationID, in)
	if err != nil {
		return nil, err
	}
	// Reactivated members see their earlier undelivered rows again.
	ids := make([]string, 0, len(added))
	for _, p := range added {
		ids = append(ids, p.UserID)
	}
	s.invalidateUnread(ctx, ids...)
	return added, nil
}

// RemoveParticipant is open to the owner for anyone but themselves, and to
// any member for themselves.
func (s *InboxService) RemoveParticipant(ctx context.Context, userID, conversationID, targetUserID string) error {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if targetUserID == conv.OwnerUserID {
		return models.NewValidationError("The conversation owner cannot be removed")
	}
	if userID != conv.OwnerUserID && userID != targetUserID {
		return denied(ctx, deniedNotOwner, "RemoveParticipant", userID, conversationID)
	}
	if err := s.participants.Remove(ctx, conversationID, targetUserID); err != nil {
		return err
	}
	s.invalidateUnread(ctx, targetUserID)
	return nil
}

// UpdateParticipantRole changes a member's role. Owner only.
func (s *InboxService) UpdateParticipantRole(ctx context.Context, userID, conversationID, targetUserID string, role models.ParticipantRole) (*models.ConversationParticipant, error) {
	if _, err := s.owned(ctx, "UpdateParticipantRole", userID, conversationID); err != nil {
		return nil, err
	}
	return s.participants.UpdateRole(ctx, conversationID, targetUserID, role)
}

// ParticipantStatistics counts members per role for a participant.
func (s *InboxService) ParticipantStatistics(ctx context.Context, userID, conversationID string) ([]models.ParticipantRoleStats, error) {
	if _, err := s.readable(ctx, "ParticipantStatistics", userID, conversationID); err != nil {
		return nil, err
	}
	return s.participants.GetStatistics(ctx, conversationID)
}

// ListMemberships lists the caller's memberships across all conversations,
// most recently active first.
func (s *InboxService) ListMemberships(ctx context.Context, userID string, q repository.ParticipantQuery) (*ListResult[models.ConversationParticipant], error) {
	items, err := s.participants.FindByUserID(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	total, err := s.total(userID, len(items), func() (int64, error) {
		return s.participants.CountByUserID(ctx, userID, q.ActiveOnly)
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[models.ConversationParticipant]{Items: items, Total: total}, nil
}
