package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationType classifies an inbox entry.
type ConversationType string

const (
	ConversationTypeRide      ConversationType = "ride"
	ConversationTypeSupport   ConversationType = "support"
	ConversationTypeSystem    ConversationType = "system"
	ConversationTypeMarketing ConversationType = "marketing"
)

// Valid reports whether t is one of the known conversation types.
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationTypeRide, ConversationTypeSupport, ConversationTypeSystem, ConversationTypeMarketing:
		return true
	}
	return false
}

// ParticipantRole is the membership role of a user in a conversation.
type ParticipantRole string

const (
	RoleParticipant ParticipantRole = "participant"
	RoleAdmin       ParticipantRole = "admin"
	RoleSupport     ParticipantRole = "support"
)

func (r ParticipantRole) Valid() bool {
	switch r {
	case RoleParticipant, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

// MessageType defines the payload kind of a chat message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeFile     MessageType = "file"
	MessageTypeLocation MessageType = "location"
	MessageTypeSystem   MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeLocation, MessageTypeSystem:
		return true
	}
	return false
}

// DeliveryStatus is a recipient's view of a message.
type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusRead:
		return true
	}
	return false
}

// InboxConversation is one owner's inbox entry for a thread. Rows are per
// owner: two users talking to each other may each hold their own entry with
// independent archive, mute and unread state.
type InboxConversation struct {
	ID                   string           `gorm:"type:varchar(64);primaryKey" json:"id"`
	OwnerUserID          string           `gorm:"type:varchar(64);not null;index:idx_inbox_owner_last" json:"ownerUserId"`
	ConversationType     ConversationType `gorm:"type:varchar(20);not null;index" json:"conversationType"`
	TitleAr              string           `gorm:"size:255;not null" json:"titleAr"`
	TitleEn              string           `gorm:"size:255;not null" json:"titleEn"`
	LastMessagePreviewAr string           `gorm:"type:text;not null;default:''" json:"lastMessagePreviewAr"`
	LastMessagePreviewEn string           `gorm:"type:text;not null;default:''" json:"lastMessagePreviewEn"`
	LastMessageAt        *time.Time       `gorm:"index:idx_inbox_owner_last" json:"lastMessageAt"`
	UnreadCount          int              `gorm:"not null;default:0;check:chk_inbox_unread_non_negative,unread_count >= 0" json:"unreadCount"`
	IsArchived           bool             `gorm:"not null;default:false" json:"isArchived"`
	IsMuted              bool             `gorm:"not null;default:false" json:"isMuted"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
	ParticipantCount     int64            `gorm:"-" json:"participantCount"`
}

// TableName specifies the table name for GORM.
func (InboxConversation) TableName() string {
	return "inbox_conversations"
}

func (c *InboxConversation) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ConversationParticipant binds a user to a conversation. Removal is soft so
// membership history survives for statistics.
type ConversationParticipant struct {
	ID             string             `gorm:"type:varchar(64);primaryKey" json:"id"`
	ConversationID string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_participant_pair" json:"conversationId"`
	Conversation   *InboxConversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	UserID         string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_participant_pair;index" json:"userId"`
	User           *User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role           ParticipantRole    `gorm:"type:varchar(20);not null;default:'participant'" json:"role"`
	JoinedAt       time.Time          `gorm:"not null" json:"joinedAt"`
	LeftAt         *time.Time         `json:"leftAt"`
	IsActive       bool               `gorm:"not null;default:true" json:"isActive"`
}

// TableName specifies the table name for GORM.
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

func (p *ConversationParticipant) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	if p.Role == "" {
		p.Role = RoleParticipant
	}
	return nil
}

// ChatMessage is one message in a conversation room. RoomID is the
// conversation id.
type ChatMessage struct {
	ID           string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	RoomID       string          `gorm:"type:varchar(64);not null;index:idx_chat_messages_room_created" json:"roomId"`
	SenderID     string          `gorm:"type:varchar(64);not null;index" json:"senderId"`
	Sender       *User           `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	MessageType  MessageType     `gorm:"type:varchar(20);not null;default:'text'" json:"messageType"`
	MessageText  string          `gorm:"type:text;not null;default:''" json:"messageText"`
	MessageAr    string          `gorm:"type:text;not null;default:''" json:"messageAr"`
	MessageEn    string          `gorm:"type:text;not null;default:''" json:"messageEn"`
	MediaURL     *string         `gorm:"size:1024" json:"mediaUrl,omitempty"`
	MediaType    *string         `gorm:"size:100" json:"mediaType,omitempty"`
	FileSize     *int64          `json:"fileSize,omitempty"`
	LocationData json.RawMessage `gorm:"type:json" json:"locationData,omitempty"`
	IsEdited     bool            `gorm:"not null;default:false" json:"isEdited"`
	EditedAt     *time.Time      `json:"editedAt,omitempty"`
	IsDeleted    bool            `gorm:"not null;default:false;index" json:"isDeleted"`
	DeletedAt    *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt    time.Time       `gorm:"index:idx_chat_messages_room_created" json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

func (m *ChatMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.MessageType == "" {
		m.MessageType = MessageTypeText
	}
	return nil
}

// MessageStatus is the per-recipient delivery row. There is exactly one row
// per (message, user).
type MessageStatus struct {
	ID        string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	MessageID string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_message_status_pair" json:"messageId"`
	UserID    string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_message_status_pair;index" json:"userId"`
	Status    DeliveryStatus `gorm:"type:varchar(20);not null;default:'sent'" json:"status"`
	ReadAt    *time.Time     `json:"readAt"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TableName specifies the table name for GORM.
func (MessageStatus) TableName() string {
	return "message_status"
}

func (s *MessageStatus) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
