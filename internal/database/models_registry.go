package database

import "ridehail/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.InboxConversation{},
		&models.ConversationParticipant{},
		&models.ChatMessage{},
		&models.MessageStatus{},
	}
}
