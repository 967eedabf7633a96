package models

import "time"

// ConversationTypeStats aggregates one owner's conversations of a single type.
type ConversationTypeStats struct {
	ConversationType ConversationType `json:"conversationType"`
	Count            int64            `json:"count"`
	UnreadSum        int64            `json:"unreadSum"`
	ArchivedCount    int64            `json:"archivedCount"`
	MutedCount       int64            `json:"mutedCount"`
}

// ParticipantRoleStats counts memberships of one role in a conversation.
type ParticipantRoleStats struct {
	Role          ParticipantRole `json:"role"`
	ActiveCount   int64           `json:"activeCount"`
	InactiveCount int64           `json:"inactiveCount"`
}

// MessageStatistics summarizes the non-deleted messages of a room.
type MessageStatistics struct {
	TotalMessages    int64      `json:"totalMessages"`
	TextMessages     int64      `json:"textMessages"`
	ImageMessages    int64      `json:"imageMessages"`
	FileMessages     int64      `json:"fileMessages"`
	LocationMessages int64      `json:"locationMessages"`
	SystemMessages   int64      `json:"systemMessages"`
	EditedMessages   int64      `json:"editedMessages"`
	FirstMessageAt   *time.Time `json:"firstMessageAt"`
	LastMessageAt    *time.Time `json:"lastMessageAt"`
}

// UnreadSummary is returned by the unread-count endpoint.
type UnreadSummary struct {
	UnreadCount             int64 `json:"unreadCount"`
	ConversationUnreadCount int64 `json:"conversationUnreadCount"`
}
