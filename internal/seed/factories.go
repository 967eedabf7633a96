// Package seed provides helpers to create demo data for the inbox
// database. These helpers are intended for development and testing only.
package seed

import (
	"encoding/json"
	"fmt"
	"strings"

	"ridehail/internal/models"
	"ridehail/internal/repository"
	"ridehail/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

type phrase struct{ ar, en string }

var (
	riderPhrases = []phrase{
		{"أنا عند المدخل الرئيسي", "I'm at the main entrance"},
		{"كم دقيقة تحتاج؟", "How many minutes away are you?"},
		{"معي حقيبتان", "I have two bags"},
		{"هل يمكنك الانتظار قليلاً؟", "Can you wait a moment?"},
		{"شكراً، وصلت", "Thanks, I've arrived"},
	}
	driverPhrases = []phrase{
		{"أنا في الطريق", "I'm on my way"},
		{"وصلت إلى موقع الالتقاط", "I've reached the pickup point"},
		{"السيارة بيضاء", "The car is white"},
		{"الطريق مزدحم، سأتأخر قليلاً", "Traffic is heavy, I'll be a little late"},
		{"لا مشكلة", "No problem"},
	}
	supportPhrases = []phrase{
		{"كيف يمكننا مساعدتك؟", "How can we help you?"},
		{"تم استرداد المبلغ", "The amount has been refunded"},
		{"نعتذر عن الإزعاج", "Sorry for the inconvenience"},
		{"هل ما زلت بحاجة إلى مساعدة؟", "Do you still need help?"},
	}
)

// Factory builds inbox entities from fake data. The same seed yields the
// same sequence of entities.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory returns a Factory. A zero seed picks a random one.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// User builds a directory entry whose id starts with prefix.
func (f *Factory) User(prefix string) models.User {
	return models.User{
		ID:        prefix + "-" + strings.ToLower(f.faker.LetterN(8)),
		Name:      f.faker.Name(),
		Email:     strings.ToLower(f.faker.Email()),
		Phone:     f.faker.Phone(),
		AvatarURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
}

// Users builds n users sharing prefix.
func (f *Factory) Users(prefix string, n int) []models.User {
	out := make([]models.User, 0, n)
	for range n {
		out = append(out, f.User(prefix))
	}
	return out
}

// Pick returns a random element of users.
func (f *Factory) Pick(users []models.User) models.User {
	return users[f.faker.Number(0, len(users)-1)]
}

// RideConversation describes a trip chat owned by the rider.
func (f *Factory) RideConversation(driver models.User) service.CreateConversationInput {
	city := f.faker.City()
	return service.CreateConversationInput{
		ConversationType: models.ConversationTypeRide,
		TitleAr:          "رحلة إلى " + city,
		TitleEn:          "Trip to " + city,
		Participants:     participantsOf(driver, models.RoleParticipant),
	}
}

// SupportConversation describes a ticket chat owned by the rider.
func (f *Factory) SupportConversation(agent models.User) service.CreateConversationInput {
	ticket := f.faker.Number(10000, 99999)
	return service.CreateConversationInput{
		ConversationType: models.ConversationTypeSupport,
		TitleAr:          fmt.Sprintf("تذكرة دعم %d", ticket),
		TitleEn:          fmt.Sprintf("Support ticket %d", ticket),
		Participants:     participantsOf(agent, models.RoleSupport),
	}
}

func participantsOf(u models.User, role models.ParticipantRole) []repository.ParticipantInput {
	return []repository.ParticipantInput{{UserID: u.ID, Role: role}}
}

// RiderMessage, DriverMessage and SupportMessage build a text message from
// the matching phrase book.
func (f *Factory) RiderMessage() service.SendMessageInput   { return f.text(riderPhrases) }
func (f *Factory) DriverMessage() service.SendMessageInput  { return f.text(driverPhrases) }
func (f *Factory) SupportMessage() service.SendMessageInput { return f.text(supportPhrases) }

func (f *Factory) text(book []phrase) service.SendMessageInput {
	p := book[f.faker.Number(0, len(book)-1)]
	en := p.en
	ar := p.ar
	return service.SendMessageInput{
		MessageType: models.MessageTypeText,
		MessageText: &en,
		MessageAr:   &ar,
		MessageEn:   &en,
	}
}

// LocationMessage shares a pin near a random point.
func (f *Factory) LocationMessage() service.SendMessageInput {
	loc, _ := json.Marshal(map[string]any{
		"lat":     f.faker.Latitude(),
		"lng":     f.faker.Longitude(),
		"address": f.faker.Street(),
	})
	en := "Shared a location"
	ar := "تمت مشاركة موقع"
	return service.SendMessageInput{
		MessageType:  models.MessageTypeLocation,
		MessageText:  &en,
		MessageAr:    &ar,
		MessageEn:    &en,
		LocationData: loc,
	}
}
