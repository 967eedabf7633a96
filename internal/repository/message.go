package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"ridehail/internal/models"
	"ridehail/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const messagesTable = "chat_messages"

// CreateMessageInput carries a new message. Text fields are pointers so a
// missing field can be told apart from an empty one.
type CreateMessageInput struct {
	RoomID       string
	SenderID     string
	MessageType  models.MessageType
	MessageText  *string
	MessageAr    *string
	MessageEn    *string
	MediaURL     *string
	MediaType    *string
	FileSize     *int64
	LocationData json.RawMessage
}

// MessageUpdate is a partial edit of the message text triplet.
type MessageUpdate struct {
	MessageText *string `json:"messageText"`
	MessageAr   *string `json:"messageAr"`
	MessageEn   *string `json:"messageEn"`
}

// Empty reports whether no recognized field is set.
func (u MessageUpdate) Empty() bool {
	return u.MessageText == nil && u.MessageAr == nil && u.MessageEn == nil
}

// MessageQuery pages through a room. Before, when set, keeps only messages
// created strictly earlier.
type MessageQuery struct {
	Page
	Before *time.Time
}

// MessageRepository is the per-room message log plus per-recipient delivery
// tracking. Callers authorize through the participant registry first.
type MessageRepository interface {
	WithTx(tx *gorm.DB) MessageRepository
	Create(ctx context.Context, in CreateMessageInput) (*models.ChatMessage, error)
	FindByID(ctx context.Context, id string) (*models.ChatMessage, error)
	FindByRoomID(ctx context.Context, roomID string, q MessageQuery) ([]models.ChatMessage, error)
	CountByRoomID(ctx context.Context, roomID string, before *time.Time) (int64, error)
	Update(ctx context.Context, id string, in MessageUpdate) (*models.ChatMessage, error)
	Delete(ctx context.Context, id string) error
	UpdateMessageStatus(ctx context.Context, messageID, userID string, status models.DeliveryStatus) (*models.MessageStatus, error)
	GetMessageStatus(ctx context.Context, messageID, userID string) (*models.MessageStatus, error)
	MarkAsRead(ctx context.Context, roomID, userID string, before *time.Time) (int64, error)
	GetUnreadCount(ctx context.Context, roomID, userID string) (int64, error)
	CountUnreadForUser(ctx context.Context, userID string) (int64, error)
	Search(ctx context.Context, roomID, term string, page Page) ([]models.ChatMessage, error)
	CountSearch(ctx context.Context, roomID, term string) (int64, error)
	GetStatistics(ctx context.Context, roomID string) (*models.MessageStatistics, error)
}

type messageRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, log: observability.NewRepoLogger(messagesTable)}
}

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository {
	return &messageRepository{db: tx, log: r.log}
}

func validateMessageInput(in CreateMessageInput) error {
	if in.RoomID == "" || in.SenderID == "" {
		return models.NewValidationError("roomId and senderId are required")
	}
	if !in.MessageType.Valid() {
		return models.NewValidationError("messageType must be one of text, image, file, location, system")
	}
	if in.MessageType == models.MessageTypeText &&
		(in.MessageText == nil || in.MessageAr == nil || in.MessageEn == nil) {
		return models.NewValidationError("messageText, messageAr and messageEn are required")
	}
	if len(in.LocationData) > 0 && !json.Valid(in.LocationData) {
		return models.NewValidationError("locationData must be valid JSON")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create inserts the message and one `sent` delivery row per active
// participant of the room. Both writes share a transaction, or a savepoint
// when the repository is already bound to one.
func (r *messageRepository) Create(ctx context.Context, in CreateMessageInput) (*models.ChatMessage, error) {
	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}
	if err := validateMessageInput(in); err != nil {
		return nil, err
	}
	defer observability.TrackQuery("create", messagesTable)()
	ctx, span := observability.StartRepositorySpan(ctx, "create_message", messagesTable)
	defer span.End()

	msg := models.ChatMessage{
		RoomID:       in.RoomID,
		SenderID:     in.SenderID,
		MessageType:  in.MessageType,
		MessageText:  deref(in.MessageText),
		MessageAr:    deref(in.MessageAr),
		MessageEn:    deref(in.MessageEn),
		MediaURL:     in.MediaURL,
		MediaType:    in.MediaType,
		FileSize:     in.FileSize,
		LocationData: in.LocationData,
	}

	fanout := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		var recipients []string
		err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND is_active = ?", in.RoomID, true).
			Pluck("user_id", &recipients).Error
		if err != nil {
			return err
		}
		if len(recipients) == 0 {
			return nil
		}

		rows := make([]models.MessageStatus, 0, len(recipients))
		for _, uid := range recipients {
			rows = append(rows, models.MessageStatus{MessageID: msg.ID, UserID: uid, Status: models.DeliveryStatusSent})
		}
		fanout = len(rows)
		return tx.CreateInBatches(&rows, 500).Error
	})
	if err != nil {
		return nil, fail(ctx, r.log, "create_message", err,
			slog.String("room_id", in.RoomID), slog.String("sender_id", in.SenderID))
	}
	observability.DeliveryFanout.Observe(float64(fanout))
	r.log.LogCreate(ctx, "create_message",
		slog.String("message_id", msg.ID), slog.String("room_id", in.RoomID), slog.Int("fanout", fanout))

	var out models.ChatMessage
	if err := r.db.WithContext(ctx).Preload("Sender").Where("id = ?", msg.ID).Take(&out).Error; err != nil {
		return nil, fail(ctx, r.log, "create_message", err, slog.String("message_id", msg.ID))
	}
	return &out, nil
}

// FindByID returns NotFound for missing and soft-deleted messages alike.
func (r *messageRepository) FindByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("id = ? AND is_deleted = ?", id, false).
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Message", id)
	}
	if err != nil {
		return nil, fail(ctx, r.log, "find_message", err, slog.String("message_id", id))
	}
	return &msg, nil
}

func (r *messageRepository) roomScope(ctx context.Context, roomID string, before *time.Time) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("room_id = ? AND is_deleted = ?", roomID, false)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	return q
}

// FindByRoomID pages backwards from the newest message and returns the page
// oldest first.
func (r *messageRepository) FindByRoomID(ctx context.Context, roomID string, q MessageQuery) ([]models.ChatMessage, error) {
	defer observability.TrackQuery("find_by_room", messagesTable)()

	var msgs []models.ChatMessage
	err := q.Page.apply(r.roomScope(ctx, roomID, q.Before)).
		Preload("Sender").
		Order("created_at DESC").
		Order("id DESC").
		Find(&msgs).Error
	if err != nil {
		return nil, fail(ctx, r.log, "find_messages", err, slog.String("room_id", roomID))
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *messageRepository) CountByRoomID(ctx context.Context, roomID string, before *time.Time) (int64, error) {
	var count int64
	if err := r.roomScope(ctx, roomID, before).Count(&count).Error; err != nil {
		return 0, fail(ctx, r.log, "count_messages", err, slog.String("room_id", roomID))
	}
	return count, nil
}

func (r *messageRepository) Update(ctx context.Context, id string, in MessageUpdate) (*models.ChatMessage, error) {
	if in.Empty() {
		return nil, models.NewInvalidArgumentError("no updatable message fields supplied")
	}

	now := nowUTC()
	updates := map[string]any{"is_edited": true, "edited_at": now, "updated_at": now}
	if in.MessageText != nil {
		updates["message_text"] = *in.MessageText
	}
	if in.MessageAr != nil {
		updates["message_ar"] = *in.MessageAr
	}
	if in.MessageEn != nil {
		updates["message_en"] = *in.MessageEn
	}

	res := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return nil, fail(ctx, r.log, "update_message", res.Error, slog.String("message_id", id))
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Message", id)
	}
	r.log.LogUpdate(ctx, "update_message", slog.String("message_id", id))
	return r.FindByID(ctx, id)
}

// Delete soft-deletes the message. Rows are never physically removed.
func (r *messageRepository) Delete(ctx context.Context, id string) error {
	now := nowUTC()
	res := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": now, "updated_at": now})
	if res.Error != nil {
		return fail(ctx, r.log, "delete_message", res.Error, slog.String("message_id", id))
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Message", id)
	}
	r.log.LogDelete(ctx, "delete_message", slog.String("message_id", id))
	return nil
}

// UpdateMessageStatus sets the caller's delivery state, creating the row if
// the user joined after the message was sent. Any transition is accepted;
// read_at is stamped only for read.
func (r *messageRepository) UpdateMessageStatus(ctx context.Context, messageID, userID string, status models.DeliveryStatus) (*models.MessageStatus, error) {
	if !status.Valid() {
		return nil, models.NewInvalidArgumentError("status must be one of sent, delivered, read")
	}

	now := nowUTC()
	row := models.MessageStatus{MessageID: messageID, UserID: userID, Status: status}
	assign := map[string]any{"status": status, "updated_at": now, "read_at": nil}
	if status == models.DeliveryStatusRead {
		row.ReadAt = &now
		assign["read_at"] = now
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(assign),
	}).Create(&row).Error
	if err != nil {
		return nil, fail(ctx, r.log, "update_message_status", err,
			slog.String("message_id", messageID), slog.String("user_id", userID))
	}
	r.log.LogUpdate(ctx, "update_message_status",
		slog.String("message_id", messageID), slog.String("user_id", userID), slog.String("status", string(status)))
	return r.GetMessageStatus(ctx, messageID, userID)
}

func (r *messageRepository) GetMessageStatus(ctx context.Context, messageID, userID string) (*models.MessageStatus, error) {
	var st models.MessageStatus
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("MessageStatus", messageID)
	}
	if err != nil {
		return nil, fail(ctx, r.log, "get_message_status", err,
			slog.String("message_id", messageID), slog.String("user_id", userID))
	}
	return &st, nil
}

// MarkAsRead moves every unread delivery row of the user in the room to
// read. With before set, only messages created strictly earlier are touched.
func (r *messageRepository) MarkAsRead(ctx context.Context, roomID, userID string, before *time.Time) (int64, error) {
	ids := r.db.Model(&models.ChatMessage{}).Select("id").Where("room_id = ?", roomID)
	if before != nil {
		ids = ids.Where("created_at < ?", before.UTC())
	}

	now := nowUTC()
	res := r.db.WithContext(ctx).Model(&models.MessageStatus{}).
		Where("user_id = ? AND status <> ? AND message_id IN (?)", userID, models.DeliveryStatusRead, ids).
		Updates(map[string]any{"status": models.DeliveryStatusRead, "read_at": now, "updated_at": now})
	if res.Error != nil {
		return 0, fail(ctx, r.log, "mark_as_read", res.Error,
			slog.String("room_id", roomID), slog.String("user_id", userID))
	}
	r.log.LogUpdate(ctx, "mark_as_read",
		slog.String("room_id", roomID), slog.String("user_id", userID), slog.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}

// GetUnreadCount counts the user's non-read delivery rows in one room.
func (r *messageRepository) GetUnreadCount(ctx context.Context, roomID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MessageStatus{}).
		Joins("JOIN chat_messages ON chat_messages.id = message_status.message_id").
		Where("chat_messages.room_id = ? AND message_status.user_id = ? AND message_status.status <> ?",
			roomID, userID, models.DeliveryStatusRead).
		Count(&count).Error
	if err != nil {
		return 0, fail(ctx, r.log, "room_unread_count", err,
			slog.String("room_id", roomID), slog.String("user_id", userID))
	}
	return count, nil
}

// CountUnreadForUser counts unread messages addressed to the user across
// every room they are still an active member of. The user's own and deleted
// messages are excluded.
func (r *messageRepository) CountUnreadForUser(ctx context.Context, userID string) (int64, error) {
	defer observability.TrackQuery("count_unread_for_user", "message_status")()

	var count int64
	err := r.db.WithContext(ctx).Model(&models.MessageStatus{}).
		Joins("JOIN chat_messages ON chat_messages.id = message_status.message_id").
		Joins("JOIN conversation_participants ON conversation_participants.conversation_id = chat_messages.room_id "+
			"AND conversation_participants.user_id = message_status.user_id").
		Where("message_status.user_id = ? AND message_status.status <> ?", userID, models.DeliveryStatusRead).
		Where("chat_messages.sender_id <> ? AND chat_messages.is_deleted = ?", userID, false).
		Where("conversation_participants.is_active = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, fail(ctx, r.log, "user_unread_count", err, slog.String("user_id", userID))
	}
	return count, nil
}

func (r *messageRepository) searchScope(ctx context.Context, roomID, term string) *gorm.DB {
	p := likePattern(term)
	return r.roomScope(ctx, roomID, nil).
		Where(`(LOWER(message_text) LIKE ? ESCAPE '\' OR LOWER(message_ar) LIKE ? ESCAPE '\' OR LOWER(message_en) LIKE ? ESCAPE '\')`, p, p, p)
}

// Search matches term case-insensitively against the text triplet, newest first.
func (r *messageRepository) Search(ctx context.Context, roomID, term string, page Page) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := page.apply(r.searchScope(ctx, roomID, term)).
		Preload("Sender").
		Order("created_at DESC").
		Find(&msgs).Error
	if err != nil {
		return nil, fail(ctx, r.log, "search_messages", err, slog.String("room_id", roomID))
	}
	return msgs, nil
}

func (r *messageRepository) CountSearch(ctx context.Context, roomID, term string) (int64, error) {
	var count int64
	if err := r.searchScope(ctx, roomID, term).Count(&count).Error; err != nil {
		return 0, fail(ctx, r.log, "count_search_messages", err, slog.String("room_id", roomID))
	}
	return count, nil
}

// GetStatistics aggregates the non-deleted messages of a room.
func (r *messageRepository) GetStatistics(ctx context.Context, roomID string) (*models.MessageStatistics, error) {
	var stats models.MessageStatistics
	err := r.roomScope(ctx, roomID, nil).
		Select("COUNT(*) AS total_messages, " +
			"COALESCE(SUM(CASE WHEN message_type = 'text' THEN 1 ELSE 0 END), 0) AS text_messages, " +
			"COALESCE(SUM(CASE WHEN message_type = 'image' THEN 1 ELSE 0 END), 0) AS image_messages, " +
			"COALESCE(SUM(CASE WHEN message_type = 'file' THEN 1 ELSE 0 END), 0) AS file_messages, " +
			"COALESCE(SUM(CASE WHEN message_type = 'location' THEN 1 ELSE 0 END), 0) AS location_messages, " +
			"COALESCE(SUM(CASE WHEN message_type = 'system' THEN 1 ELSE 0 END), 0) AS system_messages, " +
			"COALESCE(SUM(CASE WHEN is_edited THEN 1 ELSE 0 END), 0) AS edited_messages").
		Scan(&stats).Error
	if err != nil {
		return nil, fail(ctx, r.log, "message_statistics", err, slog.String("room_id", roomID))
	}
	if stats.TotalMessages == 0 {
		return &stats, nil
	}

	var first, last models.ChatMessage
	if err := r.roomScope(ctx, roomID, nil).Select("created_at").Order("created_at ASC").Take(&first).Error; err != nil {
		return nil, fail(ctx, r.log, "message_statistics", err, slog.String("room_id", roomID))
	}
	if err := r.roomScope(ctx, roomID, nil).Select("created_at").Order("created_at DESC").Take(&last).Error; err != nil {
		return nil, fail(ctx, r.log, "message_statistics", err, slog.String("room_id", roomID))
	}
	stats.FirstMessageAt = &first.CreatedAt
	stats.LastMessageAt = &last.CreatedAt
	return &stats, nil
}
