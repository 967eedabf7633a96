package repository

import (
	"context"
	"errors"
	"log/slog"

	"ridehail/internal/models"
	"ridehail/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipantInput names a user to add to a conversation. An empty Role
// means models.RoleParticipant.
type ParticipantInput struct {
	UserID string
	Role   models.ParticipantRole
}

// ParticipantQuery filters membership listings.
type ParticipantQuery struct {
	ActiveOnly bool
	Page
}

// ParticipantRepository is the membership source of truth. It answers "may
// this user see this conversation" for every other component and never
// re-checks the caller's identity itself.
type ParticipantRepository interface {
	WithTx(tx *gorm.DB) ParticipantRepository
	Add(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (*models.ConversationParticipant, error)
	BulkAdd(ctx context.Context, conversationID string, participants []ParticipantInput) ([]models.ConversationParticipant, error)
	Remove(ctx context.Context, conversationID, userID string) error
	IsParticipant(ctx context.Context, conversationID, userID string, activeOnly bool) (bool, error)
	FindByConversationID(ctx context.Context, conversationID string, q ParticipantQuery) ([]models.ConversationParticipant, error)
	CountByConversationID(ctx context.Context, conversationID string, activeOnly bool) (int64, error)
	FindByUserID(ctx context.Context, userID string, q ParticipantQuery) ([]models.ConversationParticipant, error)
	CountByUserID(ctx context.Context, userID string, activeOnly bool) (int64, error)
	FindByRole(ctx context.Context, conversationID string, role models.ParticipantRole, activeOnly bool) ([]models.ConversationParticipant, error)
	UpdateRole(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (*models.ConversationParticipant, error)
	GetParticipantCount(ctx context.Context, conversationID string) (int64, error)
	CountActiveByConversationIDs(ctx context.Context, conversationIDs []string) (map[string]int64, error)
	ActiveUserIDs(ctx context.Context, conversationID string) ([]string, error)
	GetStatistics(ctx context.Context, conversationID string) ([]models.ParticipantRoleStats, error)
}

type participantRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &participantRepository{db: db, log: observability.NewRepoLogger("conversation_participants")}
}

func (r *participantRepository) WithTx(tx *gorm.DB) ParticipantRepository {
	return &participantRepository{db: tx, log: r.log}
}

var participantPairColumns = []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}}

func pairAttrs(conversationID, userID string) []slog.Attr {
	return []slog.Attr{slog.String("conversation_id", conversationID), slog.String("user_id", userID)}
}

// Add returns the active membership for the pair, reactivating a left
// membership or inserting a new one as needed. It never produces a second
// row for the same pair.
func (r *participantRepository) Add(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (*models.ConversationParticipant, error) {
	if role == "" {
		role = models.RoleParticipant
	}
	if !role.Valid() {
		return nil, models.NewInvalidArgumentError("role must be one of participant, admin, support")
	}
	db := r.db.WithContext(ctx)

	existing, err := r.find(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		p := models.ConversationParticipant{ConversationID: conversationID, UserID: userID, Role: role, IsActive: true}
		// A concurrent Add may win the insert; the row is re-read either way.
		if err := db.Clauses(clause.OnConflict{Columns: participantPairColumns, DoNothing: true}).Create(&p).Error; err != nil {
			return nil, fail(ctx, r.log, "add_participant", err, pairAttrs(conversationID, userID)...)
		}
		r.log.LogCreate(ctx, "add_participant", pairAttrs(conversationID, userID)...)
		if existing, err = r.find(ctx, conversationID, userID); err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, models.NewStorageError("add_participant", errors.New("participant row missing after insert"))
		}
	}

	if existing.IsActive {
		return existing, nil
	}

	err = db.Model(&models.ConversationParticipant{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{"is_active": true, "left_at": nil}).Error
	if err != nil {
		return nil, fail(ctx, r.log, "reactivate_participant", err, pairAttrs(conversationID, userID)...)
	}
	r.log.LogUpdate(ctx, "reactivate_participant", pairAttrs(conversationID, userID)...)
	existing.IsActive = true
	existing.LeftAt = nil
	return existing, nil
}

func (r *participantRepository) find(ctx context.Context, conversationID, userID string) (*models.ConversationParticipant, error) {
	var p models.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(ctx, r.log, "find_participant", err, pairAttrs(conversationID, userID)...)
	}
	return &p, nil
}

// BulkAdd upserts every (conversation, user) pair in one statement: new
// pairs are inserted, left pairs are reactivated and active pairs are left
// as they are. Duplicate user ids in the input collapse to the first entry.
func (r *participantRepository) BulkAdd(ctx context.Context, conversationID string, participants []ParticipantInput) ([]models.ConversationParticipant, error) {
	rows := make([]models.ConversationParticipant, 0, len(participants))
	userIDs := make([]string, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, in := range participants {
		if in.UserID == "" {
			continue
		}
		if _, dup := seen[in.UserID]; dup {
			continue
		}
		seen[in.UserID] = struct{}{}
		role := in.Role
		if role == "" {
			role = models.RoleParticipant
		}
		if !role.Valid() {
			return nil, models.NewInvalidArgumentError("role must be one of participant, admin, support")
		}
		rows = append(rows, models.ConversationParticipant{
			ConversationID: conversationID,
			UserID:         in.UserID,
			Role:           role,
			IsActive:       true,
		})
		userIDs = append(userIDs, in.UserID)
	}
	if len(rows) == 0 {
		return []models.ConversationParticipant{}, nil
	}

	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   participantPairColumns,
		DoUpdates: clause.Assignments(map[string]any{"is_active": true, "left_at": nil}),
	}).Create(&rows).Error
	if err != nil {
		return nil, fail(ctx, r.log, "bulk_add_participants", err,
			slog.String("conversation_id", conversationID), slog.Int("count", len(rows)))
	}
	r.log.LogCreate(ctx, "bulk_add_participants", slog.String("conversation_id", conversationID), slog.Int("count", len(rows)))

	var out []models.ConversationParticipant
	err = db.Where("conversation_id = ? AND user_id IN ?", conversationID, userIDs).
		Order("joined_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fail(ctx, r.log, "bulk_add_participants", err, slog.String("conversation_id", conversationID))
	}
	return out, nil
}

// Remove marks the membership inactive and stamps left_at. The row is kept.
func (r *participantRepository) Remove(ctx context.Context, conversationID, userID string) error {
	res := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		Updates(map[string]any{"is_active": false, "left_at": nowUTC()})
	if res.Error != nil {
		return fail(ctx, r.log, "remove_participant", res.Error, pairAttrs(conversationID, userID)...)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Participant", userID)
	}
	r.log.LogUpdate(ctx, "remove_participant", pairAttrs(conversationID, userID)...)
	return nil
}

func (r *participantRepository) IsParticipant(ctx context.Context, conversationID, userID string, activeOnly bool) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fail(ctx, r.log, "is_participant", err, pairAttrs(conversationID, userID)...)
	}
	return count > 0, nil
}

func (r *participantRepository) conversationScope(ctx context.Context, conversationID string, activeOnly bool) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	return q
}

// FindByConversationID lists members with their directory fields, oldest first.
func (r *participantRepository) FindByConversationID(ctx context.Context, conversationID string, q ParticipantQuery) ([]models.ConversationParticipant, error) {
	var out []models.ConversationParticipant
	err := q.Page.apply(r.conversationScope(ctx, conversationID, q.ActiveOnly)).
		Preload("User").
		Order("joined_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fail(ctx, r.log, "find_participants", err, slog.String("conversation_id", conversationID))
	}
	return out, nil
}

func (r *participantRepository) CountByConversationID(ctx context.Context, conversationID string, activeOnly bool) (int64, error) {
	var count int64
	if err := r.conversationScope(ctx, conversationID, activeOnly).Count(&count).Error; err != nil {
		return 0, fail(ctx, r.log, "count_participants", err, slog.String("conversation_id", conversationID))
	}
	return count, nil
}

func (r *participantRepository) userScope(ctx context.Context, userID string, activeOnly bool) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Joins("JOIN inbox_conversations ON inbox_conversations.id = conversation_participants.conversation_id").
		Where("conversation_participants.user_id = ?", userID)
	if activeOnly {
		q = q.Where("conversation_participants.is_active = ?", true)
	}
	return q
}

// FindByUserID lists a user's memberships with their conversations, most
// recently active conversation first.
func (r *participantRepository) FindByUserID(ctx context.Context, userID string, q ParticipantQuery) ([]models.ConversationParticipant, error) {
	var out []models.ConversationParticipant
	err := q.Page.apply(r.userScope(ctx, userID, q.ActiveOnly)).
		Preload("Conversation").
		Order("inbox_conversations.last_message_at DESC NULLS LAST").
		Order("conversation_participants.joined_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fail(ctx, r.log, "find_memberships", err, slog.String("user_id", userID))
	}
	return out, nil
}

func (r *participantRepository) CountByUserID(ctx context.Context, userID string, activeOnly bool) (int64, error) {
	var count int64
	if err := r.userScope(ctx, userID, activeOnly).Count(&count).Error; err != nil {
		return 0, fail(ctx, r.log, "count_memberships", err, slog.String("user_id", userID))
	}
	return count, nil
}

func (r *participantRepository) FindByRole(ctx context.Context, conversationID string, role models.ParticipantRole, activeOnly bool) ([]models.ConversationParticipant, error) {
	var out []models.ConversationParticipant
	err := r.conversationScope(ctx, conversationID, activeOnly).
		Where("role = ?", role).
		Preload("User").
		Order("joined_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fail(ctx, r.log, "find_participants_by_role", err,
			slog.String("conversation_id", conversationID), slog.String("role", string(role)))
	}
	return out, nil
}

// UpdateRole changes the role of an existing membership, active or not.
func (r *participantRepository) UpdateRole(ctx context.Context, conversationID, userID string, role models.ParticipantRole) (*models.ConversationParticipant, error) {
	if !role.Valid() {
		return nil, models.NewInvalidArgumentError("role must be one of participant, admin, support")
	}
	res := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("role", role)
	if res.Error != nil {
		return nil, fail(ctx, r.log, "update_participant_role", res.Error, pairAttrs(conversationID, userID)...)
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("Participant", userID)
	}
	r.log.LogUpdate(ctx, "update_participant_role", append(pairAttrs(conversationID, userID), slog.String("role", string(role)))...)

	p, err := r.find(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, models.NewNotFoundError("Participant", userID)
	}
	return p, nil
}

// GetParticipantCount counts active members.
func (r *participantRepository) GetParticipantCount(ctx context.Context, conversationID string) (int64, error) {
	return r.CountByConversationID(ctx, conversationID, true)
}

func (r *participantRepository) CountActiveByConversationIDs(ctx context.Context, conversationIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ConversationID string
		Total          int64
	}
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Select("conversation_id, COUNT(*) AS total").
		Where("conversation_id IN ? AND is_active = ?", conversationIDs, true).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fail(ctx, r.log, "count_active_participants", err, slog.Int("conversations", len(conversationIDs)))
	}
	for _, row := range rows {
		out[row.ConversationID] = row.Total
	}
	return out, nil
}

func (r *participantRepository) ActiveUserIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.conversationScope(ctx, conversationID, true).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fail(ctx, r.log, "active_participant_ids", err, slog.String("conversation_id", conversationID))
	}
	return ids, nil
}

// GetStatistics counts active and inactive memberships per role.
func (r *participantRepository) GetStatistics(ctx context.Context, conversationID string) ([]models.ParticipantRoleStats, error) {
	var stats []models.ParticipantRoleStats
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Select("role, " +
			"COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active_count, " +
			"COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive_count").
		Where("conversation_id = ?", conversationID).
		Group("role").
		Order("role ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fail(ctx, r.log, "participant_statistics", err, slog.String("conversation_id", conversationID))
	}
	return stats, nil
}
