package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ridehail/internal/config"
	"ridehail/internal/middleware"
	"ridehail/internal/models"
	"ridehail/internal/repository"
	"ridehail/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

// MockInbox is a mock of the InboxAPI interface
type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) ListConversations(ctx context.Context, userID string, f repository.ConversationFilter) (*service.ListResult[models.InboxConversation], error) {
	args := m.Called(ctx, userID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult[models.InboxConversation]), args.Error(1)
}

func (m *MockInbox) CreateConversation(ctx context.Context, userID string, in service.CreateConversationInput) (*models.InboxConversation, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InboxConversation), args.Error(1)
}

func (m *MockInbox) GetConversation(ctx context.Context, userID, conversationID string) (*models.InboxConversation, error) {
	args := m.Called(ctx, userID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InboxConversation), args.Error(1)
}

func (m *MockInbox) UpdateConversation(ctx context.Context, userID, conversationID string, in repository.ConversationUpdate) (*models.InboxConversation, error) {
	args := m.Called(ctx, userID, conversationID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InboxConversation), args.Error(1)
}

func (m *MockInbox) ArchiveConversation(ctx context.Context, userID, conversationID string) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

func (m *MockInbox) UnarchiveConversation(ctx context.Context, userID, conversationID string) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

func (m *MockInbox) MuteConversation(ctx context.Context, userID, conversationID string) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

func (m *MockInbox) UnmuteConversation(ctx context.Context, userID, conversationID string) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

func (m *MockInbox) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	return m.Called(ctx, userID, conversationID).Error(0)
}

func (m *MockInbox) MarkConversationRead(ctx context.Context, userID, conversationID string, before *time.Time) (int64, error) {
	args := m.Called(ctx, userID, conversationID, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInbox) ListMessages(ctx context.Context, userID, conversationID string, q repository.MessageQuery) (*service.ListResult[models.ChatMessage], error) {
	args := m.Called(ctx, userID, conversationID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult[models.ChatMessage]), args.Error(1)
}

func (m *MockInbox) SendMessage(ctx context.Context, userID, conversationID string, in service.SendMessageInput) (*models.ChatMessage, error) {
	args := m.Called(ctx, userID, conversationID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockInbox) GetMessage(ctx context.Context, userID, messageID string) (*models.ChatMessage, error) {
	args := m.Called(ctx, userID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockInbox) UpdateMessage(ctx context.Context, userID, messageID string, in repository.MessageUpdate) (*models.ChatMessage, error) {
	args := m.Called(ctx, userID, messageID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockInbox) DeleteMessage(ctx context.Context, userID, messageID string) error {
	return m.Called(ctx, userID, messageID).Error(0)
}

func (m *MockInbox) MarkMessageRead(ctx context.Context, userID, messageID string) (*models.MessageStatus, error) {
	args := m.Called(ctx, userID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageStatus), args.Error(1)
}

func (m *MockInbox) GetMessageStatus(ctx context.Context, userID, messageID string) (*models.MessageStatus, error) {
	args := m.Called(ctx, userID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageStatus), args.Error(1)
}

func (m *MockInbox) UpdateMessageStatus(ctx context.Context, userID, messageID string, status models.DeliveryStatus) (*models.MessageStatus, error) {
	args := m.Called(ctx, userID, messageID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageStatus), args.Error(1)
}

func (m *MockInbox) SearchMessages(ctx context.Context, userID, conversationID, query string, page repository.Page) (*service.ListResult[models.ChatMessage], error) {
	args := m.Called(ctx, userID, conversationID, query, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult[models.ChatMessage]), args.Error(1)
}

func (m *MockInbox) MessageStatistics(ctx context.Context, userID, conversationID string) (*models.MessageStatistics, error) {
	args := m.Called(ctx, userID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageStatistics), args.Error(1)
}

func (m *MockInbox) SearchConversations(ctx context.Context, userID, query string, page repository.Page) (*service.ListResult[models.InboxConversation], error) {
	args := m.Called(ctx, userID, query, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult[models.InboxConversation]), args.Error(1)
}

func (m *MockInbox) UnreadSummary(ctx context.Context, userID string) (*models.UnreadSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UnreadSummary), args.Error(1)
}

func (m *MockInbox) ConversationStatistics(ctx context.Context, userID string) ([]models.ConversationTypeStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationTypeStats), args.Error(1)
}

func (m *MockInbox) ListParticipants(ctx context.Context, userID, conversationID string, q repository.ParticipantQuery) (*service.ListResult[models.ConversationParticipant], error) {
	args := m.Called(ctx, userID, conversationID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult[models.ConversationParticipant]), args.Error(1)
}

func (m *MockInbox) AddParticipants(ctx context.Context, userID, conversationID string, in []repository.ParticipantInput) ([]models.ConversationParticipant, error) {
	args := m.Called(ctx, userID, conversationID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationParticipant), args.Error(1)
}

func (m *MockInbox) RemoveParticipant(ctx context.Context, userID, conversationID, targetUserID string) error {
	return m.Called(ctx, userID, conversationID, targetUserID).Error(0)
}

func (m *MockInbox) UpdateParticipantRole(ctx context.Context, userID, conversationID, targetUserID string, role models.ParticipantRole) (*models.ConversationParticipant, error) {
	args := m.Called(ctx, userID, conversationID, targetUserID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversationParticipant), args.Error(1)
}

func (m *MockInbox) ParticipantStatistics(ctx context.Context, userID, conversationID string) ([]models.ParticipantRoleStats, error) {
	args := m.Called(ctx, userID, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ParticipantRoleStats), args.Error(1)
}

func (m *MockInbox) ListMemberships(ctx context.Context, userID string, q repository.ParticipantQuery) (*service.ListResult[models.ConversationParticipant], error) {
	args := m.Called(ctx, userID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult[models.ConversationParticipant]), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      testJWTSecret,
		Port:           "8080",
		Env:            "test",
		AllowedOrigins: "http://localhost:5173",
	}
}

// newMockServer serves the full route table over a mocked inbox.
func newMockServer(t *testing.T) (*fiber.App, *MockInbox) {
	t.Helper()
	inbox := new(MockInbox)
	s := &Server{config: testConfig(), inbox: inbox}
	return s.App(), inbox
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.IssueToken(middleware.AuthConfig{Secret: testJWTSecret}, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

// call performs an authenticated request and decodes the JSON reply.
func call(t *testing.T, app *fiber.App, userID, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", bearer(t, userID))
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestGetConversations(t *testing.T) {
	app, inbox := newMockServer(t)

	archived := true
	inbox.On("ListConversations", mock.Anything, "rider", repository.ConversationFilter{
		ConversationType: models.ConversationTypeRide,
		IsArchived:       &archived,
		SortBy:           "created_at",
		SortOrder:        "ASC",
		Page:             repository.Page{Limit: 10, Offset: 5},
	}).Return(&service.ListResult[models.InboxConversation]{
		Items: []models.InboxConversation{{ID: "c1", OwnerUserID: "rider"}},
		Total: 1,
	}, nil).Once()

	status, body := call(t, app, "rider", http.MethodGet,
		"/api/conversations?conversationType=ride&isArchived=true&sortBy=created_at&sortOrder=ASC&limit=10&offset=5", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["data"], 1)
	assert.Equal(t, map[string]any{"limit": float64(10), "offset": float64(5), "total": float64(1)}, body["pagination"])
	inbox.AssertExpectations(t)
}

func TestGetConversations_EmptyPageIsArray(t *testing.T) {
	app, inbox := newMockServer(t)
	inbox.On("ListConversations", mock.Anything, "rider", mock.Anything).
		Return(&service.ListResult[models.InboxConversation]{}, nil).Once()

	status, body := call(t, app, "rider", http.MethodGet, "/api/conversations", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["data"])
}

func TestGetConversations_BadQuery(t *testing.T) {
	app, inbox := newMockServer(t)

	status, body := call(t, app, "rider", http.MethodGet, "/api/conversations?isMuted=sometimes", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, models.CodeValidation, body["error"])

	inbox.On("ListConversations", mock.Anything, "rider", mock.Anything).
		Return(nil, models.NewInvalidArgumentError("sortBy must be one of last_message_at, created_at, unread_count")).Once()
	status, body = call(t, app, "rider", http.MethodGet, "/api/conversations?sortBy=title", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidArgument, body["error"])
	inbox.AssertExpectations(t)
}

func TestCreateConversation(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		mockSetup      func(*MockInbox)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "Success",
			body: map[string]any{
				"conversationType": "support",
				"titleAr":          "محادثة دعم",
				"titleEn":          "Support Conversation",
				"participants":     []map[string]string{{"userId": "agent", "role": "support"}},
			},
			mockSetup: func(m *MockInbox) {
				m.On("CreateConversation", mock.Anything, "rider", service.CreateConversationInput{
					ConversationType: models.ConversationTypeSupport,
					TitleAr:          "محادثة دعم",
					TitleEn:          "Support Conversation",
					Participants:     []repository.ParticipantInput{{UserID: "agent", Role: models.RoleSupport}},
				}).Return(&models.InboxConversation{ID: "c1", ParticipantCount: 2}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "Conversation created successfully",
		},
		{
			name: "Validation failure",
			body: map[string]any{"conversationType": "chitchat"},
			mockSetup: func(m *MockInbox) {
				m.On("CreateConversation", mock.Anything, "rider", mock.Anything).
					Return(nil, models.NewValidationError("conversationType must be one of ride, support, system, marketing")).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "conversationType must be one of ride, support, system, marketing",
		},
		{
			name:           "Malformed body",
			body:           "not-an-object",
			mockSetup:      func(*MockInbox) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, inbox := newMockServer(t)
			tt.mockSetup(inbox)

			status, body := call(t, app, "rider", http.MethodPost, "/api/conversations", tt.body)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, tt.expectedMsg, body["message"])
			inbox.AssertExpectations(t)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{"not found", models.NewNotFoundError("Conversation", "c1"), http.StatusNotFound, "Conversation with ID c1 not found"},
		{"forbidden", models.NewForbiddenError("Not a participant of this conversation"), http.StatusForbidden, "Not a participant of this conversation"},
		{"storage hides cause", models.NewStorageError("find_conversation", errors.New("dial tcp: refused")), http.StatusInternalServerError, "Internal server error"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, inbox := newMockServer(t)
			inbox.On("GetConversation", mock.Anything, "rider", "c1").Return(nil, tt.err).Once()

			status, body := call(t, app, "rider", http.MethodGet, "/api/conversations/c1", nil)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.expectedMsg, body["message"])
		})
	}
}

func TestOwnerActions(t *testing.T) {
	tests := []struct {
		path   string
		method string
		call   string
		msg    string
	}{
		{"/api/conversations/c1/archive", http.MethodPut, "ArchiveConversation", "Conversation archived successfully"},
		{"/api/conversations/c1/unarchive", http.MethodPut, "UnarchiveConversation", "Conversation unarchived successfully"},
		{"/api/conversations/c1/mute", http.MethodPut, "MuteConversation", "Conversation muted successfully"},
		{"/api/conversations/c1/unmute", http.MethodPut, "UnmuteConversation", "Conversation unmuted successfully"},
		{"/api/conversations/c1", http.MethodDelete, "DeleteConversation", "Conversation deleted successfully"},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			app, inbox := newMockServer(t)
			inbox.On(tt.call, mock.Anything, "rider", "c1").Return(nil).Once()
			inbox.On(tt.call, mock.Anything, "driver", "c1").Return(models.NewForbiddenError("Only the conversation owner can do this")).Once()

			status, body := call(t, app, "rider", tt.method, tt.path, nil)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.msg, body["message"])

			status, _ = call(t, app, "driver", tt.method, tt.path, nil)
			assert.Equal(t, http.StatusForbidden, status)
			inbox.AssertExpectations(t)
		})
	}
}

func TestUpdateConversation(t *testing.T) {
	app, inbox := newMockServer(t)
	title := "Airport pickup"
	inbox.On("UpdateConversation", mock.Anything, "rider", "c1", repository.ConversationUpdate{TitleEn: &title}).
		Return(&models.InboxConversation{ID: "c1", TitleEn: title}, nil).Once()

	status, body := call(t, app, "rider", http.MethodPut, "/api/conversations/c1",
		map[string]any{"titleEn": title, "color": "blue"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, title, body["data"].(map[string]any)["titleEn"])
	inbox.AssertExpectations(t)
}

func TestMessages(t *testing.T) {
	t.Run("list with cursor", func(t *testing.T) {
		app, inbox := newMockServer(t)
		before := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
		inbox.On("ListMessages", mock.Anything, "rider", "c1", repository.MessageQuery{
			Page:   repository.Page{Limit: 50},
			Before: &before,
		}).Return(&service.ListResult[models.ChatMessage]{
			Items: []models.ChatMessage{{ID: "m1"}, {ID: "m2"}},
			Total: 2,
		}, nil).Once()

		status, body := call(t, app, "rider", http.MethodGet, "/api/conversations/c1/messages?before=2024-05-01T08:00:00Z", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, body["data"], 2)
		assert.Equal(t, float64(50), body["pagination"].(map[string]any)["limit"])
		inbox.AssertExpectations(t)
	})

	t.Run("send", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("SendMessage", mock.Anything, "rider", "c1", mock.MatchedBy(func(in service.SendMessageInput) bool {
			return in.MessageText != nil && *in.MessageText == "hi" &&
				in.MessageAr != nil && *in.MessageAr == "مرحبا" &&
				in.MessageEn != nil && *in.MessageEn == "hi"
		})).Return(&models.ChatMessage{ID: "m1", RoomID: "c1"}, nil).Once()

		status, body := call(t, app, "rider", http.MethodPost, "/api/conversations/c1/messages",
			map[string]string{"messageText": "hi", "messageAr": "مرحبا", "messageEn": "hi"})
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "Message sent successfully", body["message"])
		inbox.AssertExpectations(t)
	})

	t.Run("send missing text", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("SendMessage", mock.Anything, "rider", "c1", mock.Anything).
			Return(nil, models.NewValidationError("Missing required fields: messageAr, messageEn")).Once()

		status, body := call(t, app, "rider", http.MethodPost, "/api/conversations/c1/messages",
			map[string]string{"messageText": "hi"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["message"], "Missing required fields")
	})

	t.Run("mark read", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("MarkMessageRead", mock.Anything, "driver", "m1").
			Return(&models.MessageStatus{MessageID: "m1", UserID: "driver", Status: models.DeliveryStatusRead}, nil).Once()

		status, body := call(t, app, "driver", http.MethodPut, "/api/messages/m1/read", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "read", body["data"].(map[string]any)["status"])
	})

	t.Run("status update", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("UpdateMessageStatus", mock.Anything, "driver", "m1", models.DeliveryStatusDelivered).
			Return(&models.MessageStatus{Status: models.DeliveryStatusDelivered}, nil).Once()

		status, _ := call(t, app, "driver", http.MethodPut, "/api/messages/m1/status", map[string]string{"status": "delivered"})
		assert.Equal(t, http.StatusOK, status)
		inbox.AssertExpectations(t)
	})

	t.Run("search in room requires query", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("SearchMessages", mock.Anything, "rider", "c1", "  ", repository.Page{Limit: 20}).
			Return(nil, models.NewValidationError("Search query is required")).Once()

		status, _ := call(t, app, "rider", http.MethodGet, "/api/conversations/c1/messages/search?query=%20%20", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		inbox.AssertExpectations(t)
	})
}

func TestParticipantsHandlers(t *testing.T) {
	t.Run("activeOnly defaults to true", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("ListParticipants", mock.Anything, "rider", "c1", repository.ParticipantQuery{
			ActiveOnly: true,
			Page:       repository.Page{Limit: 20},
		}).Return(&service.ListResult[models.ConversationParticipant]{}, nil).Once()
		inbox.On("ListParticipants", mock.Anything, "rider", "c1", repository.ParticipantQuery{
			ActiveOnly: false,
			Page:       repository.Page{Limit: 20},
		}).Return(&service.ListResult[models.ConversationParticipant]{}, nil).Once()

		status, _ := call(t, app, "rider", http.MethodGet, "/api/conversations/c1/participants", nil)
		assert.Equal(t, http.StatusOK, status)
		status, _ = call(t, app, "rider", http.MethodGet, "/api/conversations/c1/participants?activeOnly=false", nil)
		assert.Equal(t, http.StatusOK, status)
		inbox.AssertExpectations(t)
	})

	t.Run("add", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("AddParticipants", mock.Anything, "rider", "c1", []repository.ParticipantInput{{UserID: "agent", Role: models.RoleSupport}}).
			Return([]models.ConversationParticipant{{UserID: "agent", Role: models.RoleSupport}}, nil).Once()

		status, body := call(t, app, "rider", http.MethodPost, "/api/conversations/c1/participants",
			map[string]any{"participants": []map[string]string{{"userId": " agent ", "role": "support"}}})
		assert.Equal(t, http.StatusCreated, status)
		assert.Len(t, body["data"], 1)
		inbox.AssertExpectations(t)
	})

	t.Run("remove and role", func(t *testing.T) {
		app, inbox := newMockServer(t)
		inbox.On("RemoveParticipant", mock.Anything, "driver", "c1", "driver").Return(nil).Once()
		inbox.On("UpdateParticipantRole", mock.Anything, "rider", "c1", "agent", models.ParticipantRole("pilot")).
			Return(nil, models.NewInvalidArgumentError("role must be one of participant, admin, support")).Once()

		status, _ := call(t, app, "driver", http.MethodDelete, "/api/conversations/c1/participants/driver", nil)
		assert.Equal(t, http.StatusOK, status)
		status, _ = call(t, app, "rider", http.MethodPut, "/api/conversations/c1/participants/agent/role", map[string]string{"role": "pilot"})
		assert.Equal(t, http.StatusBadRequest, status)
		inbox.AssertExpectations(t)
	})
}

func TestCallerScopedEndpoints(t *testing.T) {
	app, inbox := newMockServer(t)
	inbox.On("UnreadSummary", mock.Anything, "driver").
		Return(&models.UnreadSummary{UnreadCount: 3, ConversationUnreadCount: 1}, nil).Once()
	inbox.On("ConversationStatistics", mock.Anything, "driver").Return(nil, nil).Once()
	inbox.On("SearchConversations", mock.Anything, "driver", "airport", repository.Page{Limit: 5}).
		Return(&service.ListResult[models.InboxConversation]{}, nil).Once()

	status, body := call(t, app, "driver", http.MethodGet, "/api/unread-count", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"unreadCount": float64(3), "conversationUnreadCount": float64(1)}, body["data"])

	status, body = call(t, app, "driver", http.MethodGet, "/api/statistics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["data"])

	status, _ = call(t, app, "driver", http.MethodGet, "/api/search?query=airport&limit=5", nil)
	assert.Equal(t, http.StatusOK, status)
	inbox.AssertExpectations(t)
}

func TestAuthAndRouting(t *testing.T) {
	app, inbox := newMockServer(t)

	status, body := call(t, app, "", http.MethodGet, "/api/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.CodeUnauthorized, body["error"])

	status, _ = call(t, app, "rider", http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = call(t, app, "", http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "up", body["status"])

	status, body = call(t, app, "", http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, map[string]any{"database": "unavailable", "redis": "unavailable"}, body["checks"])

	inbox.AssertNotCalled(t, "ListConversations", mock.Anything, mock.Anything, mock.Anything)
}
