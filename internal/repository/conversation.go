package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ridehail/internal/models"
	"ridehail/internal/observability"

	"gorm.io/gorm"
)

const conversationsTable = "inbox_conversations"

// Sortable directory columns.
const (
	SortByLastMessageAt = "last_message_at"
	SortByCreatedAt     = "created_at"
	SortByUnreadCount   = "unread_count"
)

var conversationSortColumns = map[string]bool{
	SortByLastMessageAt: true,
	SortByCreatedAt:     true,
	SortByUnreadCount:   true,
}

// CreateConversationInput describes a new inbox entry. The owner is always
// registered as an active participant alongside Participants.
type CreateConversationInput struct {
	OwnerUserID      string
	ConversationType models.ConversationType
	TitleAr          string
	TitleEn          string
	Participants     []ParticipantInput
}

// ConversationFilter narrows an owner's listing. A nil IsArchived or IsMuted
// means false.
type ConversationFilter struct {
	ConversationType models.ConversationType
	IsArchived       *bool
	IsMuted          *bool
	SortBy           string
	SortOrder        string
	Page
}

// ConversationUpdate is a partial edit of the owner-editable fields.
type ConversationUpdate struct {
	TitleAr          *string                  `json:"titleAr"`
	TitleEn          *string                  `json:"titleEn"`
	ConversationType *models.ConversationType `json:"conversationType"`
}

// Empty reports whether no recognized field is set.
func (u ConversationUpdate) Empty() bool {
	return u.TitleAr == nil && u.TitleEn == nil && u.ConversationType == nil
}

// ConversationRepository holds per-owner inbox entries with their
// denormalized preview and unread state.
type ConversationRepository interface {
	WithTx(tx *gorm.DB) ConversationRepository
	Create(ctx context.Context, in CreateConversationInput) (*models.InboxConversation, error)
	FindByID(ctx context.Context, id string) (*models.InboxConversation, error)
	FindByUserID(ctx context.Context, ownerUserID string, f ConversationFilter) ([]models.InboxConversation, error)
	CountByUserID(ctx context.Context, ownerUserID string, f ConversationFilter) (int64, error)
	Update(ctx context.Context, id string, in ConversationUpdate) (*models.InboxConversation, error)
	Archive(ctx context.Context, id string) error
	Unarchive(ctx context.Context, id string) error
	Mute(ctx context.Context, id string) error
	Unmute(ctx context.Context, id string) error
	UpdateLastMessage(ctx context.Context, id, previewAr, previewEn string) error
	IncrementUnreadCount(ctx context.Context, id string) error
	ResetUnreadCount(ctx context.Context, id string) error
	GetUnreadCount(ctx context.Context, ownerUserID string) (int64, error)
	Search(ctx context.Context, ownerUserID, query string, page Page) ([]models.InboxConversation, error)
	CountSearch(ctx context.Context, ownerUserID, query string) (int64, error)
	Delete(ctx context.Context, id string) error
	GetStatistics(ctx context.Context, ownerUserID string) ([]models.ConversationTypeStats, error)
}

type conversationRepository struct {
	db           *gorm.DB
	participants ParticipantRepository
	log          *observability.RepoLogger
}

// NewConversationRepository creates a new conversation repository. Create
// registers members through participants.
func NewConversationRepository(db *gorm.DB, participants ParticipantRepository) ConversationRepository {
	return &conversationRepository{
		db:           db,
		participants: participants,
		log:          observability.NewRepoLogger(conversationsTable),
	}
}

func (r *conversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	return &conversationRepository{db: tx, participants: r.participants.WithTx(tx), log: r.log}
}

func validateConversationInput(in CreateConversationInput) error {
	if in.OwnerUserID == "" {
		return models.NewValidationError("ownerUserId is required")
	}
	if !in.ConversationType.Valid() {
		return models.NewValidationError("conversationType must be one of ride, support, system, marketing")
	}
	if strings.TrimSpace(in.TitleAr) == "" || strings.TrimSpace(in.TitleEn) == "" {
		return models.NewValidationError("titleAr and titleEn are required")
	}
	return nil
}

// Create inserts the entry and registers the owner plus any extra
// participants, all in one transaction.
func (r *conversationRepository) Create(ctx context.Context, in CreateConversationInput) (*models.InboxConversation, error) {
	if err := validateConversationInput(in); err != nil {
		return nil, err
	}
	defer observability.TrackQuery("create", conversationsTable)()

	conv := models.InboxConversation{
		OwnerUserID:      in.OwnerUserID,
		ConversationType: in.ConversationType,
		TitleAr:          in.TitleAr,
		TitleEn:          in.TitleEn,
	}

	members := make([]ParticipantInput, 0, len(in.Participants)+1)
	members = append(members, ParticipantInput{UserID: in.OwnerUserID})
	members = append(members, in.Participants...)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		_, err := r.participants.WithTx(tx).BulkAdd(ctx, conv.ID, members)
		return err
	})
	if err != nil {
		return nil, fail(ctx, r.log, "create_conversation", err,
			slog.String("owner_user_id", in.OwnerUserID), slog.String("conversation_type", string(in.ConversationType)))
	}
	r.log.LogCreate(ctx, "create_conversation",
		slog.String("conversation_id", conv.ID), slog.Int("participants", len(members)))
	return r.FindByID(ctx, conv.ID)
}

// FindByID returns the entry with a live count of active participants.
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*models.InboxConversation, error) {
	defer observability.TrackQuery("find_by_id", conversationsTable)()

	var conv models.InboxConversation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Conversation", id)
	}
	if err != nil {
		return nil, fail(ctx, r.log, "find_conversation", err, slog.String("conversation_id", id))
	}

	count, err := r.participants.GetParticipantCount(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.ParticipantCount = count
	return &conv, nil
}

func (r *conversationRepository) ownerScope(ctx context.Context, ownerUserID string, f ConversationFilter) *gorm.DB {
	archived, muted := false, false
	if f.IsArchived != nil {
		archived = *f.IsArchived
	}
	if f.IsMuted != nil {
		muted = *f.IsMuted
	}

	q := r.db.WithContext(ctx).Model(&models.InboxConversation{}).
		Where("owner_user_id = ? AND is_archived = ? AND is_muted = ?", ownerUserID, archived, muted)
	if f.ConversationType != "" {
		q = q.Where("conversation_type = ?", f.ConversationType)
	}
	return q
}

// orderClause validates the requested sort. Empty values select
// last_message_at DESC.
func orderClause(sortBy, sortOrder string) (string, error) {
	if sortBy == "" {
		sortBy = SortByLastMessageAt
	}
	if !conversationSortColumns[sortBy] {
		return "", models.NewInvalidArgumentError("sortBy must be one of last_message_at, created_at, unread_count")
	}

	dir := strings.ToUpper(sortOrder)
	if dir == "" {
		dir = "DESC"
	}
	if dir != "ASC" && dir != "DESC" {
		return "", models.NewInvalidArgumentError("sortOrder must be ASC or DESC")
	}

	order := sortBy + " " + dir
	if sortBy == SortByLastMessageAt {
		order += " NULLS LAST"
	}
	return order, nil
}

// FindByUserID lists conversations owned by the user that match every filter.
// An unknown sort column is rejected before any query runs.
func (r *conversationRepository) FindByUserID(ctx context.Context, ownerUserID string, f ConversationFilter) ([]models.InboxConversation, error) {
	order, err := orderClause(f.SortBy, f.SortOrder)
	if err != nil {
		return nil, err
	}
	defer observability.TrackQuery("find_by_owner", conversationsTable)()

	var convs []models.InboxConversation
	err = f.Page.apply(r.ownerScope(ctx, ownerUserID, f)).
		Order(order).
		Order("id ASC").
		Find(&convs).Error
	if err != nil {
		return nil, fail(ctx, r.log, "find_conversations", err, slog.String("owner_user_id", ownerUserID))
	}
	if err := r.attachParticipantCounts(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *conversationRepository) CountByUserID(ctx context.Context, ownerUserID string, f ConversationFilter) (int64, error) {
	var count int64
	if err := r.ownerScope(ctx, ownerUserID, f).Count(&count).Error; err != nil {
		return 0, fail(ctx, r.log, "count_conversations", err, slog.String("owner_user_id", ownerUserID))
	}
	return count, nil
}

func (r *conversationRepository) attachParticipantCounts(ctx context.Context, convs []models.InboxConversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]string, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
	}
	counts, err := r.participants.CountActiveByConversationIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range convs {
		convs[i].ParticipantCount = counts[convs[i].ID]
	}
	return nil
}

func (r *conversationRepository) Update(ctx context.Context, id string, in ConversationUpdate) (*models.InboxConversation, error) {
	if in.Empty() {
		return nil, models.NewInvalidArgumentError("no updatable conversation fields supplied")
	}

	updates := map[string]any{"updated_at": nowUTC()}
	if in.TitleAr != nil {
		if strings.TrimSpace(*in.TitleAr) == "" {
			return nil, models.NewValidationError("titleAr must not be empty")
		}
		updates["title_ar"] = *in.TitleAr
	}
	if in.TitleEn != nil {
		if strings.TrimSpace(*in.TitleEn) == "" {
			return nil, models.NewValidationError("titleEn must not be empty")
		}
		updates["title_en"] = *in.TitleEn
	}
	if in.ConversationType != nil {
		if !in.ConversationType.Valid() {
			return nil, models.NewValidationError("conversationType must be one of ride, support, system, marketing")
		}
		updates["conversation_type"] = *in.ConversationType
	}

	if err := r.updateColumns(ctx, "update_conversation", id, updates); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// updateColumns applies updates to one row and maps a miss to NotFound.
func (r *conversationRepository) updateColumns(ctx context.Context, op, id string, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = nowUTC()
	}
	res := r.db.WithContext(ctx).Model(&models.InboxConversation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fail(ctx, r.log, op, res.Error, slog.String("conversation_id", id))
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Conversation", id)
	}
	r.log.LogUpdate(ctx, op, slog.String("conversation_id", id))
	return nil
}

func (r *conversationRepository) Archive(ctx context.Context, id string) error {
	return r.updateColumns(ctx, "archive_conversation", id, map[string]any{"is_archived": true})
}

func (r *conversationRepository) Unarchive(ctx context.Context, id string) error {
	return r.updateColumns(ctx, "unarchive_conversation", id, map[string]any{"is_archived": false})
}

func (r *conversationRepository) Mute(ctx context.Context, id string) error {
	return r.updateColumns(ctx, "mute_conversation", id, map[string]any{"is_muted": true})
}

func (r *conversationRepository) Unmute(ctx context.Context, id string) error {
	return r.updateColumns(ctx, "unmute_conversation", id, map[string]any{"is_muted": false})
}

// UpdateLastMessage stores the bilingual preview and stamps last_message_at.
func (r *conversationRepository) UpdateLastMessage(ctx context.Context, id, previewAr, previewEn string) error {
	now := nowUTC()
	return r.updateColumns(ctx, "update_last_message", id, map[string]any{
		"last_message_preview_ar": previewAr,
		"last_message_preview_en": previewEn,
		"last_message_at":         now,
		"updated_at":              now,
	})
}

// IncrementUnreadCount adds exactly one in a single statement.
func (r *conversationRepository) IncrementUnreadCount(ctx context.Context, id string) error {
	return r.updateColumns(ctx, "increment_unread", id, map[string]any{"unread_count": gorm.Expr("unread_count + ?", 1)})
}

func (r *conversationRepository) ResetUnreadCount(ctx context.Context, id string) error {
	return r.updateColumns(ctx, "reset_unread", id, map[string]any{"unread_count": 0})
}

// GetUnreadCount sums unread counters over the owner's conversations that
// are neither archived nor muted.
func (r *conversationRepository) GetUnreadCount(ctx context.Context, ownerUserID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.InboxConversation{}).
		Select("COALESCE(SUM(unread_count), 0)").
		Where("owner_user_id = ? AND is_archived = ? AND is_muted = ?", ownerUserID, false, false).
		Scan(&total).Error
	if err != nil {
		return 0, fail(ctx, r.log, "owner_unread_count", err, slog.String("owner_user_id", ownerUserID))
	}
	return total, nil
}

func (r *conversationRepository) searchScope(ctx context.Context, ownerUserID, query string) *gorm.DB {
	p := likePattern(query)
	return r.db.WithContext(ctx).Model(&models.InboxConversation{}).
		Where("owner_user_id = ? AND is_archived = ?", ownerUserID, false).
		Where(`(LOWER(title_ar) LIKE ? ESCAPE '\' OR LOWER(title_en) LIKE ? ESCAPE '\' `+
			`OR LOWER(last_message_preview_ar) LIKE ? ESCAPE '\' OR LOWER(last_message_preview_en) LIKE ? ESCAPE '\')`,
			p, p, p, p)
}

// Search matches titles and previews, skipping archived entries, most
// recently active first.
func (r *conversationRepository) Search(ctx context.Context, ownerUserID, query string, page Page) ([]models.InboxConversation, error) {
	var convs []models.InboxConversation
	err := page.apply(r.searchScope(ctx, ownerUserID, query)).
		Order("last_message_at DESC NULLS LAST").
		Order("id ASC").
		Find(&convs).Error
	if err != nil {
		return nil, fail(ctx, r.log, "search_conversations", err, slog.String("owner_user_id", ownerUserID))
	}
	if err := r.attachParticipantCounts(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *conversationRepository) CountSearch(ctx context.Context, ownerUserID, query string) (int64, error) {
	var count int64
	if err := r.searchScope(ctx, ownerUserID, query).Count(&count).Error; err != nil {
		return 0, fail(ctx, r.log, "count_search_conversations", err, slog.String("owner_user_id", ownerUserID))
	}
	return count, nil
}

// Delete removes the directory row only. Memberships and messages stay.
func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.InboxConversation{})
	if res.Error != nil {
		return fail(ctx, r.log, "delete_conversation", res.Error, slog.String("conversation_id", id))
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Conversation", id)
	}
	r.log.LogDelete(ctx, "delete_conversation", slog.String("conversation_id", id))
	return nil
}

// GetStatistics aggregates the owner's conversations per type.
func (r *conversationRepository) GetStatistics(ctx context.Context, ownerUserID string) ([]models.ConversationTypeStats, error) {
	var stats []models.ConversationTypeStats
	err := r.db.WithContext(ctx).Model(&models.InboxConversation{}).
		Select("conversation_type, COUNT(*) AS count, " +
			"COALESCE(SUM(unread_count), 0) AS unread_sum, " +
			"COALESCE(SUM(CASE WHEN is_archived THEN 1 ELSE 0 END), 0) AS archived_count, " +
			"COALESCE(SUM(CASE WHEN is_muted THEN 1 ELSE 0 END), 0) AS muted_count").
		Where("owner_user_id = ?", ownerUserID).
		Group("conversation_type").
		Order("conversation_type ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fail(ctx, r.log, "conversation_statistics", err, slog.String("owner_user_id", ownerUserID))
	}
	return stats, nil
}
