package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"ridehail/internal/models"
	"ridehail/internal/repository"
	"ridehail/internal/service"

	"github.com/gofiber/fiber/v2"
)

// InboxAPI is the use-case surface the gateway delegates to. It is satisfied
// by *service.InboxService.
type InboxAPI interface {
	ListConversations(ctx context.Context, userID string, f repository.ConversationFilter) (*service.ListResult[models.InboxConversation], error)
	CreateConversation(ctx context.Context, userID string, in service.CreateConversationInput) (*models.InboxConversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*models.InboxConversation, error)
	UpdateConversation(ctx context.Context, userID, conversationID string, in repository.ConversationUpdate) (*models.InboxConversation, error)
	ArchiveConversation(ctx context.Context, userID, conversationID string) error
	UnarchiveConversation(ctx context.Context, userID, conversationID string) error
	MuteConversation(ctx context.Context, userID, conversationID string) error
	UnmuteConversation(ctx context.Context, userID, conversationID string) error
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	MarkConversationRead(ctx context.Context, userID, conversationID string, before *time.Time) (int64, error)

	ListMessages(ctx context.Context, userID, conversationID string, q repository.MessageQuery) (*service.ListResult[models.ChatMessage], error)
	SendMessage(ctx context.Context, userID, conversationID string, in service.SendMessageInput) (*models.ChatMessage, error)
	GetMessage(ctx context.Context, userID, messageID string) (*models.ChatMessage, error)
	UpdateMessage(ctx context.Context, userID, messageID string, in repository.MessageUpdate) (*models.ChatMessage, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error
	MarkMessageRead(ctx context.Context, userID, messageID string) (*models.MessageStatus, error)
	GetMessageStatus(ctx context.Context, userID, messageID string) (*models.MessageStatus, error)
	UpdateMessageStatus(ctx context.Context, userID, messageID string, status models.DeliveryStatus) (*models.MessageStatus, error)
	SearchMessages(ctx context.Context, userID, conversationID, query string, page repository.Page) (*service.ListResult[models.ChatMessage], error)
	MessageStatistics(ctx context.Context, userID, conversationID string) (*models.MessageStatistics, error)

	SearchConversations(ctx context.Context, userID, query string, page repository.Page) (*service.ListResult[models.InboxConversation], error)
	UnreadSummary(ctx context.Context, userID string) (*models.UnreadSummary, error)
	ConversationStatistics(ctx context.Context, userID string) ([]models.ConversationTypeStats, error)

	ListParticipants(ctx context.Context, userID, conversationID string, q repository.ParticipantQuery) (*service.ListResult[models.ConversationParticipant], error)
	AddParticipants(ctx context.Context, userID, conversationID string, in []repository.ParticipantInput) ([]models.ConversationParticipant, error)
	RemoveParticipant(ctx context.Context, userID, conversationID, targetUserID string) error
	UpdateParticipantRole(ctx context.Context, userID, conversationID, targetUserID string, role models.ParticipantRole) (*models.ConversationParticipant, error)
	ParticipantStatistics(ctx context.Context, userID, conversationID string) ([]models.ParticipantRoleStats, error)
	ListMemberships(ctx context.Context, userID string, q repository.ParticipantQuery) (*service.ListResult[models.ConversationParticipant], error)
}

var _ InboxAPI = (*service.InboxService)(nil)

type participantRequest struct {
	UserID string                 `json:"userId"`
	Role   models.ParticipantRole `json:"role,omitempty"`
}

func toParticipantInputs(in []participantRequest) []repository.ParticipantInput {
	out := make([]repository.ParticipantInput, 0, len(in))
	for _, p := range in {
		out = append(out, repository.ParticipantInput{UserID: strings.TrimSpace(p.UserID), Role: p.Role})
	}
	return out
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// GetConversations handles GET /api/conversations
// @Summary List the caller's conversations
// @Tags conversations
// @Produce json
// @Param conversationType query string false "ride, support, system or marketing"
// @Param isArchived query bool false "Archived filter (default false)"
// @Param isMuted query bool false "Muted filter"
// @Param sortBy query string false "last_message_at, created_at or unread_count"
// @Param sortOrder query string false "ASC or DESC"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} Response{data=[]models.InboxConversation}
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations [get]
func (s *Server) GetConversations(c *fiber.Ctx) error {
	p := parsePagination(c, defaultConversationPageLimit)
	isArchived, err := parseBoolQuery(c, "isArchived")
	if err != nil {
		return nil
	}
	isMuted, err := parseBoolQuery(c, "isMuted")
	if err != nil {
		return nil
	}

	result, err := s.inbox.ListConversations(c.UserContext(), callerID(c), repository.ConversationFilter{
		ConversationType: models.ConversationType(strings.TrimSpace(c.Query("conversationType"))),
		IsArchived:       isArchived,
		IsMuted:          isMuted,
		SortBy:           strings.TrimSpace(c.Query("sortBy")),
		SortOrder:        strings.TrimSpace(c.Query("sortOrder")),
		Page:             p.page(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, orEmpty(result.Items), p, result.Total)
}

// CreateConversation handles POST /api/conversations
// @Summary Open a conversation owned by the caller
// @Tags conversations
// @Accept json
// @Produce json
// @Param request body object{conversationType=string,titleAr=string,titleEn=string,participants=[]object{userId=string,role=string}} true "Conversation"
// @Success 201 {object} Response{data=models.InboxConversation}
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations [post]
func (s *Server) CreateConversation(c *fiber.Ctx) error {
	var req struct {
		ConversationType models.ConversationType `json:"conversationType"`
		TitleAr          string                  `json:"titleAr"`
		TitleEn          string                  `json:"titleEn"`
		Participants     []participantRequest    `json:"participants"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	conv, err := s.inbox.CreateConversation(c.UserContext(), callerID(c), service.CreateConversationInput{
		ConversationType: req.ConversationType,
		TitleAr:          req.TitleAr,
		TitleEn:          req.TitleEn,
		Participants:     toParticipantInputs(req.Participants),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusCreated, conv, "Conversation created successfully")
}

// GetConversation handles GET /api/conversations/:id
// @Summary Get a conversation the caller participates in
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response{data=models.InboxConversation}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id} [get]
func (s *Server) GetConversation(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	conv, err := s.inbox.GetConversation(c.UserContext(), callerID(c), convID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, conv, "")
}

// UpdateConversation handles PUT /api/conversations/:id
// @Summary Edit titles or type (owner only)
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body object{titleAr=string,titleEn=string,conversationType=string} true "Fields to change"
// @Success 200 {object} Response{data=models.InboxConversation}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id} [put]
func (s *Server) UpdateConversation(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req repository.ConversationUpdate
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	conv, err := s.inbox.UpdateConversation(c.UserContext(), callerID(c), convID, req)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, conv, "Conversation updated successfully")
}

// conversationAction adapts an owner-only state change to a handler.
func (s *Server) conversationAction(action func(context.Context, string, string) error, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		convID, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		if err := action(c.UserContext(), callerID(c), convID); err != nil {
			return respondError(c, err)
		}
		return respondOK(c, fiber.StatusOK, nil, message)
	}
}

// ArchiveConversation handles PUT /api/conversations/:id/archive
// @Summary Archive a conversation (owner only)
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/archive [put]
func (s *Server) ArchiveConversation(c *fiber.Ctx) error {
	return s.conversationAction(s.inbox.ArchiveConversation, "Conversation archived successfully")(c)
}

// UnarchiveConversation handles PUT /api/conversations/:id/unarchive
// @Summary Unarchive a conversation (owner only)
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/unarchive [put]
func (s *Server) UnarchiveConversation(c *fiber.Ctx) error {
	return s.conversationAction(s.inbox.UnarchiveConversation, "Conversation unarchived successfully")(c)
}

// MuteConversation handles PUT /api/conversations/:id/mute
// @Summary Mute a conversation (owner only)
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/mute [put]
func (s *Server) MuteConversation(c *fiber.Ctx) error {
	return s.conversationAction(s.inbox.MuteConversation, "Conversation muted successfully")(c)
}

// UnmuteConversation handles PUT /api/conversations/:id/unmute
// @Summary Unmute a conversation (owner only)
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/unmute [put]
func (s *Server) UnmuteConversation(c *fiber.Ctx) error {
	return s.conversationAction(s.inbox.UnmuteConversation, "Conversation unmuted successfully")(c)
}

// DeleteConversation handles DELETE /api/conversations/:id
// @Summary Delete a conversation entry (owner only)
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id} [delete]
func (s *Server) DeleteConversation(c *fiber.Ctx) error {
	return s.conversationAction(s.inbox.DeleteConversation, "Conversation deleted successfully")(c)
}

// MarkConversationRead handles PUT /api/conversations/:id/read
// @Summary Mark the caller's deliveries in a conversation as read
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Param before query string false "Only messages created before this RFC3339 time"
// @Success 200 {object} Response{data=object{markedCount=int}}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/read [put]
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	before, err := parseTimeQuery(c, "before")
	if err != nil {
		return nil
	}
	n, err := s.inbox.MarkConversationRead(c.UserContext(), callerID(c), convID, before)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, fiber.Map{"markedCount": n}, "Conversation marked as read")
}

// GetMessages handles GET /api/conversations/:id/messages
// @Summary Page through a conversation, oldest first
// @Tags messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Param before query string false "RFC3339 cursor"
// @Success 200 {object} Response{data=[]models.ChatMessage}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	before, err := parseTimeQuery(c, "before")
	if err != nil {
		return nil
	}
	p := parsePagination(c, defaultMessagePageLimit)

	result, err := s.inbox.ListMessages(c.UserContext(), callerID(c), convID, repository.MessageQuery{
		Page:   p.page(),
		Before: before,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, orEmpty(result.Items), p, result.Total)
}

// SendMessage handles POST /api/conversations/:id/messages
// @Summary Send a bilingual message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body object{messageText=string,messageAr=string,messageEn=string,messageType=string} true "Message"
// @Success 201 {object} Response{data=models.ChatMessage}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		MessageType  models.MessageType `json:"messageType"`
		MessageText  *string            `json:"messageText"`
		MessageAr    *string            `json:"messageAr"`
		MessageEn    *string            `json:"messageEn"`
		MediaURL     *string            `json:"mediaUrl"`
		MediaType    *string            `json:"mediaType"`
		FileSize     *int64             `json:"fileSize"`
		LocationData json.RawMessage    `json:"locationData"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.inbox.SendMessage(c.UserContext(), callerID(c), convID, service.SendMessageInput{
		MessageType:  req.MessageType,
		MessageText:  req.MessageText,
		MessageAr:    req.MessageAr,
		MessageEn:    req.MessageEn,
		MediaURL:     req.MediaURL,
		MediaType:    req.MediaType,
		FileSize:     req.FileSize,
		LocationData: req.LocationData,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusCreated, msg, "Message sent successfully")
}

// SearchConversationMessages handles GET /api/conversations/:id/messages/search
// @Summary Search message text within a conversation
// @Tags messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Param query query string true "Search text"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} Response{data=[]models.ChatMessage}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/messages/search [get]
func (s *Server) SearchConversationMessages(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	p := parsePagination(c, defaultConversationPageLimit)
	result, err := s.inbox.SearchMessages(c.UserContext(), callerID(c), convID, c.Query("query"), p.page())
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, orEmpty(result.Items), p, result.Total)
}

// GetMessageStatistics handles GET /api/conversations/:id/messages/statistics
// @Summary Message counts by type for a conversation
// @Tags messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response{data=models.MessageStatistics}
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/messages/statistics [get]
func (s *Server) GetMessageStatistics(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.inbox.MessageStatistics(c.UserContext(), callerID(c), convID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, stats, "")
}

// GetMessage handles GET /api/messages/:id
// @Summary Get a message from a conversation the caller participates in
// @Tags messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} Response{data=models.ChatMessage}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /messages/{id} [get]
func (s *Server) GetMessage(c *fiber.Ctx) error {
	msgID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	msg, err := s.inbox.GetMessage(c.UserContext(), callerID(c), msgID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, msg, "")
}

// UpdateMessage handles PUT /api/messages/:id
// @Summary Edit message text (sender only)
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param request body object{messageText=string,messageAr=string,messageEn=string} true "New text"
// @Success 200 {object} Response{data=models.ChatMessage}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /messages/{id} [put]
func (s *Server) UpdateMessage(c *fiber.Ctx) error {
	msgID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req repository.MessageUpdate
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	msg, err := s.inbox.UpdateMessage(c.UserContext(), callerID(c), msgID, req)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, msg, "Message updated successfully")
}

// DeleteMessage handles DELETE /api/messages/:id
// @Summary Soft-delete a message (sender only)
// @Tags messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} Response
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /messages/{id} [delete]
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	msgID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.inbox.DeleteMessage(c.UserContext(), callerID(c), msgID); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, nil, "Message deleted successfully")
}

// MarkMessageRead handles PUT /api/messages/:id/read
// @Summary Mark a message read and reset the conversation's unread counter
// @Tags messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} Response{data=models.MessageStatus}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /messages/{id}/read [put]
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	msgID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	st, err := s.inbox.MarkMessageRead(c.UserContext(), callerID(c), msgID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, st, "Message marked as read")
}

// GetMessageStatus handles GET /api/messages/:id/status
// @Summary The caller's delivery status for a message
// @Tags messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} Response{data=models.MessageStatus}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /messages/{id}/status [get]
func (s *Server) GetMessageStatus(c *fiber.Ctx) error {
	msgID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	st, err := s.inbox.GetMessageStatus(c.UserContext(), callerID(c), msgID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, st, "")
}

// UpdateMessageStatus handles PUT /api/messages/:id/status
// @Summary Set the caller's delivery status for a message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param request body object{status=string} true "sent, delivered or read"
// @Success 200 {object} Response{data=models.MessageStatus}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /messages/{id}/status [put]
func (s *Server) UpdateMessageStatus(c *fiber.Ctx) error {
	msgID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Status models.DeliveryStatus `json:"status"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	st, err := s.inbox.UpdateMessageStatus(c.UserContext(), callerID(c), msgID, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, st, "Message status updated")
}

// SearchConversations handles GET /api/search
// @Summary Search the caller's non-archived conversations
// @Tags conversations
// @Produce json
// @Param query query string true "Search text"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} Response{data=[]models.InboxConversation}
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /search [get]
func (s *Server) SearchConversations(c *fiber.Ctx) error {
	p := parsePagination(c, defaultConversationPageLimit)
	result, err := s.inbox.SearchConversations(c.UserContext(), callerID(c), c.Query("query"), p.page())
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, orEmpty(result.Items), p, result.Total)
}

// GetUnreadCount handles GET /api/unread-count
// @Summary The caller's unread totals
// @Tags conversations
// @Produce json
// @Success 200 {object} Response{data=models.UnreadSummary}
// @Security BearerAuth
// @Router /unread-count [get]
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	summary, err := s.inbox.UnreadSummary(c.UserContext(), callerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, summary, "")
}

// GetStatistics handles GET /api/statistics
// @Summary Per-type aggregates over the caller's conversations
// @Tags conversations
// @Produce json
// @Success 200 {object} Response{data=[]models.ConversationTypeStats}
// @Security BearerAuth
// @Router /statistics [get]
func (s *Server) GetStatistics(c *fiber.Ctx) error {
	stats, err := s.inbox.ConversationStatistics(c.UserContext(), callerID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, orEmpty(stats), "")
}

// GetParticipants handles GET /api/conversations/:id/participants
// @Summary List a conversation's participants
// @Tags participants
// @Produce json
// @Param id path string true "Conversation ID"
// @Param activeOnly query bool false "Only active members" default(true)
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} Response{data=[]models.ConversationParticipant}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/participants [get]
func (s *Server) GetParticipants(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	activeOnly, err := parseBoolQuery(c, "activeOnly")
	if err != nil {
		return nil
	}
	p := parsePagination(c, defaultConversationPageLimit)

	q := repository.ParticipantQuery{ActiveOnly: true, Page: p.page()}
	if activeOnly != nil {
		q.ActiveOnly = *activeOnly
	}
	result, err := s.inbox.ListParticipants(c.UserContext(), callerID(c), convID, q)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, orEmpty(result.Items), p, result.Total)
}

// AddParticipants handles POST /api/conversations/:id/participants
// @Summary Add or reactivate participants (owner only)
// @Tags participants
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body object{participants=[]object{userId=string,role=string}} true "Participants"
// @Success 201 {object} Response{data=[]models.ConversationParticipant}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/participants [post]
func (s *Server) AddParticipants(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Participants []participantRequest `json:"participants"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	added, err := s.inbox.AddParticipants(c.UserContext(), callerID(c), convID, toParticipantInputs(req.Participants))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusCreated, orEmpty(added), "Participants added successfully")
}

// RemoveParticipant handles DELETE /api/conversations/:id/participants/:userId
// @Summary Remove a participant (owner, or the participant themselves)
// @Tags participants
// @Produce json
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/participants/{userId} [delete]
func (s *Server) RemoveParticipant(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.inbox.RemoveParticipant(c.UserContext(), callerID(c), convID, target); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, nil, "Participant removed successfully")
}

// UpdateParticipantRole handles PUT /api/conversations/:id/participants/:userId/role
// @Summary Change a participant's role (owner only)
// @Tags participants
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Param request body object{role=string} true "participant, admin or support"
// @Success 200 {object} Response{data=models.ConversationParticipant}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/participants/{userId}/role [put]
func (s *Server) UpdateParticipantRole(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req struct {
		Role models.ParticipantRole `json:"role"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	p, err := s.inbox.UpdateParticipantRole(c.UserContext(), callerID(c), convID, target, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, p, "Participant role updated")
}

// GetParticipantStatistics handles GET /api/conversations/:id/participants/statistics
// @Summary Active and inactive counts per role
// @Tags participants
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} Response{data=[]models.ParticipantRoleStats}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/participants/statistics [get]
func (s *Server) GetParticipantStatistics(c *fiber.Ctx) error {
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	stats, err := s.inbox.ParticipantStatistics(c.UserContext(), callerID(c), convID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, fiber.StatusOK, orEmpty(stats), "")
}

// GetMemberships handles GET /api/memberships
// @Summary Conversations the caller is an active member of
// @Tags participants
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} Response{data=[]models.ConversationParticipant}
// @Security BearerAuth
// @Router /memberships [get]
func (s *Server) GetMemberships(c *fiber.Ctx) error {
	p := parsePagination(c, defaultConversationPageLimit)
	result, err := s.inbox.ListMemberships(c.UserContext(), callerID(c), repository.ParticipantQuery{
		ActiveOnly: true,
		Page:       p.page(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, orEmpty(result.Items), p, result.Total)
}
