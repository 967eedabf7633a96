package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ridehail/internal/models"
	"ridehail/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type messageFixture struct {
	db           *gorm.DB
	messages     MessageRepository
	participants ParticipantRepository
}

func newMessageFixture(t *testing.T) messageFixture {
	db := testutil.NewSQLiteDB(t)
	testutil.SeedUsers(t, db, "rider", "driver", "agent")
	f := messageFixture{db: db, messages: NewMessageRepository(db), participants: NewParticipantRepository(db)}
	for _, uid := range []string{"rider", "driver"} {
		_, err := f.participants.Add(context.Background(), "room-1", uid, "")
		require.NoError(t, err)
	}
	return f
}

func textInput(room, sender, body string) CreateMessageInput {
	return CreateMessageInput{
		RoomID:      room,
		SenderID:    sender,
		MessageType: models.MessageTypeText,
		MessageText: testutil.Ptr(body),
		MessageAr:   testutil.Ptr(body + " ar"),
		MessageEn:   testutil.Ptr(body + " en"),
	}
}

// send creates a message and pins its created_at so ordering is deterministic.
func (f messageFixture) send(t *testing.T, sender, body string, at time.Time) *models.ChatMessage {
	t.Helper()
	msg, err := f.messages.Create(context.Background(), textInput("room-1", sender, body))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.ChatMessage{}).Where("id = ?", msg.ID).Update("created_at", at).Error)
	msg.CreatedAt = at
	return msg
}

func TestMessageRepository_CreateFansOutDeliveryRows(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	_, err := f.participants.Add(ctx, "room-1", "agent", models.RoleSupport)
	require.NoError(t, err)
	require.NoError(t, f.participants.Remove(ctx, "room-1", "agent"))

	msg, err := f.messages.Create(ctx, textInput("room-1", "rider", "pickup at gate 3"))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, models.MessageTypeText, msg.MessageType)
	require.NotNil(t, msg.Sender, "sender display fields are joined")
	assert.Equal(t, "User rider", msg.Sender.Name)

	var statuses []models.MessageStatus
	require.NoError(t, f.db.Where("message_id = ?", msg.ID).Order("user_id").Find(&statuses).Error)
	require.Len(t, statuses, 2, "one row per active participant, sender included")
	assert.Equal(t, "driver", statuses[0].UserID)
	assert.Equal(t, "rider", statuses[1].UserID)
	for _, s := range statuses {
		assert.Equal(t, models.DeliveryStatusSent, s.Status)
		assert.Nil(t, s.ReadAt)
	}
}

func TestMessageRepository_CreateValidation(t *testing.T) {
	f := newMessageFixture(t)

	missingEn := textInput("room-1", "rider", "hi")
	missingEn.MessageEn = nil

	badType := textInput("room-1", "rider", "hi")
	badType.MessageType = "sticker"

	badLocation := CreateMessageInput{
		RoomID: "room-1", SenderID: "rider", MessageType: models.MessageTypeLocation,
		LocationData: json.RawMessage(`{"lat":`),
	}

	for name, in := range map[string]CreateMessageInput{
		"missing text field": missingEn,
		"unknown type":       badType,
		"invalid location":   badLocation,
		"missing sender":     {RoomID: "room-1", MessageType: models.MessageTypeSystem},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.messages.Create(context.Background(), in)
			assert.True(t, models.IsCode(err, models.CodeValidation), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.ChatMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMessageRepository_CreateNonTextAllowsMissingText(t *testing.T) {
	f := newMessageFixture(t)

	msg, err := f.messages.Create(context.Background(), CreateMessageInput{
		RoomID:       "room-1",
		SenderID:     "driver",
		MessageType:  models.MessageTypeLocation,
		LocationData: json.RawMessage(`{"lat":24.71,"lng":46.67}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeLocation, msg.MessageType)
	assert.JSONEq(t, `{"lat":24.71,"lng":46.67}`, string(msg.LocationData))
}

func TestMessageRepository_CreateRollsBackWhenFanOutFails(t *testing.T) {
	f := newMessageFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&models.MessageStatus{}))

	_, err := f.messages.Create(context.Background(), textInput("room-1", "rider", "lost"))
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeStorage), "got %v", err)

	var count int64
	require.NoError(t, f.db.Model(&models.ChatMessage{}).Count(&count).Error)
	assert.Zero(t, count, "message insert is rolled back with the fan-out")
}

func TestMessageRepository_FindByRoomIDIsChronological(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first := f.send(t, "rider", "one", base)
	second := f.send(t, "driver", "two", base.Add(time.Minute))
	third := f.send(t, "rider", "three", base.Add(2*time.Minute))

	all, err := f.messages.FindByRoomID(ctx, "room-1", MessageQuery{Page: Page{Limit: 50}})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	latest, err := f.messages.FindByRoomID(ctx, "room-1", MessageQuery{Page: Page{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, second.ID, latest[0].ID, "newest page is returned oldest first")
	assert.Equal(t, third.ID, latest[1].ID)

	cutoff := base.Add(2 * time.Minute)
	older, err := f.messages.FindByRoomID(ctx, "room-1", MessageQuery{Page: Page{Limit: 50}, Before: &cutoff})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, first.ID, older[0].ID)

	count, err := f.messages.CountByRoomID(ctx, "room-1", &cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMessageRepository_SoftDelete(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg := f.send(t, "rider", "oops", time.Now().UTC())
	require.NoError(t, f.messages.Delete(ctx, msg.ID))

	_, err := f.messages.FindByID(ctx, msg.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	list, err := f.messages.FindByRoomID(ctx, "room-1", MessageQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)

	var raw models.ChatMessage
	require.NoError(t, f.db.Where("id = ?", msg.ID).Take(&raw).Error, "row is kept")
	assert.True(t, raw.IsDeleted)
	assert.NotNil(t, raw.DeletedAt)

	assert.True(t, models.IsCode(f.messages.Delete(ctx, msg.ID), models.CodeNotFound))
}

func TestMessageRepository_Update(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	msg := f.send(t, "rider", "gate 3", time.Now().UTC())

	_, err := f.messages.Update(ctx, msg.ID, MessageUpdate{})
	assert.True(t, models.IsCode(err, models.CodeInvalidArgument))

	updated, err := f.messages.Update(ctx, msg.ID, MessageUpdate{MessageEn: testutil.Ptr("gate 4")})
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)
	assert.NotNil(t, updated.EditedAt)
	assert.Equal(t, "gate 4", updated.MessageEn)
	assert.Equal(t, "gate 3", updated.MessageText)

	_, err = f.messages.Update(ctx, "missing", MessageUpdate{MessageEn: testutil.Ptr("x")})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestMessageRepository_DeliveryStatus(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	m1 := f.send(t, "rider", "one", base)
	m2 := f.send(t, "rider", "two", base.Add(time.Minute))
	f.send(t, "rider", "three", base.Add(2*time.Minute))

	unread, err := f.messages.GetUnreadCount(ctx, "room-1", "driver")
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	t.Run("read stamps read_at", func(t *testing.T) {
		st, err := f.messages.UpdateMessageStatus(ctx, m1.ID, "driver", models.DeliveryStatusRead)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusRead, st.Status)
		assert.NotNil(t, st.ReadAt)
	})

	t.Run("later sent is accepted", func(t *testing.T) {
		st, err := f.messages.UpdateMessageStatus(ctx, m1.ID, "driver", models.DeliveryStatusSent)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusSent, st.Status)
		assert.Nil(t, st.ReadAt)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.messages.UpdateMessageStatus(ctx, m1.ID, "driver", "seen")
		assert.True(t, models.IsCode(err, models.CodeInvalidArgument))
	})

	t.Run("late joiner gets a row", func(t *testing.T) {
		st, err := f.messages.UpdateMessageStatus(ctx, m2.ID, "agent", models.DeliveryStatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, "agent", st.UserID)
	})

	t.Run("mark as read with cutoff", func(t *testing.T) {
		cutoff := base.Add(90 * time.Second)
		n, err := f.messages.MarkAsRead(ctx, "room-1", "driver", &cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		unread, err := f.messages.GetUnreadCount(ctx, "room-1", "driver")
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)

		n, err = f.messages.MarkAsRead(ctx, "room-1", "driver", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		st, err := f.messages.GetMessageStatus(ctx, m2.ID, "driver")
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryStatusRead, st.Status)
		assert.NotNil(t, st.ReadAt)
	})

	t.Run("missing status row", func(t *testing.T) {
		_, err := f.messages.GetMessageStatus(ctx, m1.ID, "nobody")
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestMessageRepository_CountUnreadForUser(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	_, err := f.participants.Add(ctx, "room-2", "driver", "")
	require.NoError(t, err)
	_, err = f.participants.Add(ctx, "room-2", "agent", "")
	require.NoError(t, err)

	f.send(t, "rider", "one", time.Now().UTC())
	f.send(t, "driver", "own message", time.Now().UTC())
	deleted := f.send(t, "rider", "gone", time.Now().UTC())
	require.NoError(t, f.messages.Delete(ctx, deleted.ID))

	_, err = f.messages.Create(ctx, textInput("room-2", "agent", "support here"))
	require.NoError(t, err)

	count, err := f.messages.CountUnreadForUser(ctx, "driver")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, f.participants.Remove(ctx, "room-2", "driver"))
	count, err = f.messages.CountUnreadForUser(ctx, "driver")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "rooms the user left no longer count")
}

func TestMessageRepository_SearchAndStatistics(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	f.send(t, "rider", "Pickup at Gate 3", base)
	f.send(t, "driver", "100% on my way", base.Add(time.Minute))
	edited := f.send(t, "rider", "gate changed", base.Add(2*time.Minute))
	_, err := f.messages.Update(ctx, edited.ID, MessageUpdate{MessageText: testutil.Ptr("gate changed to 4")})
	require.NoError(t, err)
	_, err = f.messages.Create(ctx, CreateMessageInput{RoomID: "room-1", SenderID: "rider", MessageType: models.MessageTypeSystem})
	require.NoError(t, err)

	hits, err := f.messages.Search(ctx, "room-1", "GATE", Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, edited.ID, hits[0].ID, "newest first")

	literal, err := f.messages.Search(ctx, "room-1", "100%", Page{})
	require.NoError(t, err)
	assert.Len(t, literal, 1)

	none, err := f.messages.Search(ctx, "room-2", "gate", Page{})
	require.NoError(t, err)
	assert.Empty(t, none)

	total, err := f.messages.CountSearch(ctx, "room-1", "gate")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	stats, err := f.messages.GetStatistics(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalMessages)
	assert.Equal(t, int64(3), stats.TextMessages)
	assert.Equal(t, int64(1), stats.SystemMessages)
	assert.Equal(t, int64(1), stats.EditedMessages)
	require.NotNil(t, stats.FirstMessageAt)
	assert.True(t, stats.FirstMessageAt.Equal(base))

	empty, err := f.messages.GetStatistics(ctx, "room-9")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalMessages)
	assert.Nil(t, empty.LastMessageAt)
}

func TestMessageRepository_DeletedExcludedFromSearchAndStatistics(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	kept := f.send(t, "rider", "meet at gate 3", base)
	gone := f.send(t, "driver", "gate 5 instead", base.Add(time.Minute))
	_, err := f.messages.Update(ctx, gone.ID, MessageUpdate{MessageText: testutil.Ptr("gate 5 instead, sorry")})
	require.NoError(t, err)
	require.NoError(t, f.messages.Delete(ctx, gone.ID))

	hits, err := f.messages.Search(ctx, "room-1", "gate", Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, kept.ID, hits[0].ID)

	total, err := f.messages.CountSearch(ctx, "room-1", "gate")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	stats, err := f.messages.GetStatistics(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMessages)
	assert.Equal(t, int64(1), stats.TextMessages)
	assert.Zero(t, stats.EditedMessages)
	require.NotNil(t, stats.LastMessageAt)
	assert.True(t, stats.LastMessageAt.Equal(base), "the deleted message no longer sets the latest time")

	require.NoError(t, f.messages.Delete(ctx, kept.ID))
	stats, err = f.messages.GetStatistics(ctx, "room-1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
	assert.Nil(t, stats.FirstMessageAt)
}
