package seed

import (
	"context"
	"fmt"
	"log/slog"

	"ridehail/internal/models"
	"ridehail/internal/repository"
	"ridehail/internal/service"

	"gorm.io/gorm"
)

// Result summarizes a seeding run.
type Result struct {
	Riders        []models.User
	Drivers       []models.User
	Agents        []models.User
	Conversations int
	Messages      int
	Archived      int
}

// Seeder writes demo data through the same service the API uses.
type Seeder struct {
	db     *gorm.DB
	users  repository.UserRepository
	inbox  *service.InboxService
	logger *slog.Logger
	// DryRun builds entities without writing them.
	DryRun bool
}

// NewSeeder returns a Seeder over db. logger may be nil.
func NewSeeder(db *gorm.DB, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	participants := repository.NewParticipantRepository(db)
	return &Seeder{
		db:    db,
		users: repository.NewUserRepository(db),
		inbox: service.NewInboxService(
			repository.NewTransactor(db),
			repository.NewConversationRepository(db, participants),
			participants,
			repository.NewMessageRepository(db),
			nil, nil, service.Options{},
		),
		logger: logger,
	}
}

// ClearAll removes every inbox row and directory user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tables := []any{
		&models.MessageStatus{},
		&models.ChatMessage{},
		&models.ConversationParticipant{},
		&models.InboxConversation{},
		&models.User{},
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(t).Error; err != nil {
				return fmt.Errorf("clear %T: %w", t, err)
			}
		}
		return nil
	})
}

// Run creates users, ride chats and support threads as sized by p.
func (s *Seeder) Run(ctx context.Context, p Preset) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f := NewFactory(p.Seed)

	res := &Result{
		Riders:  f.Users("rider", p.Riders),
		Drivers: f.Users("driver", p.Drivers),
		Agents:  f.Users("agent", p.Agents),
	}
	if s.DryRun {
		s.logger.Info("dry run, nothing written",
			slog.Int("riders", p.Riders),
			slog.Int("drivers", p.Drivers),
			slog.Int("agents", p.Agents))
		return res, nil
	}

	all := append(append(append([]models.User{}, res.Riders...), res.Drivers...), res.Agents...)
	if err := s.users.Upsert(ctx, all...); err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}

	for i := range p.Rides {
		rider, driver := f.Pick(res.Riders), f.Pick(res.Drivers)
		err := s.thread(ctx, res, p, i, rider.ID, driver.ID, f.RideConversation(driver), func(fromOwner bool, n int) service.SendMessageInput {
			if n > 0 && n%5 == 0 {
				return f.LocationMessage()
			}
			if fromOwner {
				return f.RiderMessage()
			}
			return f.DriverMessage()
		})
		if err != nil {
			return nil, err
		}
	}

	for i := range p.SupportThreads {
		rider, agent := f.Pick(res.Riders), f.Pick(res.Agents)
		err := s.thread(ctx, res, p, p.Rides+i, rider.ID, agent.ID, f.SupportConversation(agent), func(fromOwner bool, _ int) service.SendMessageInput {
			if fromOwner {
				return f.RiderMessage()
			}
			return f.SupportMessage()
		})
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("seed complete",
		slog.Int("users", len(all)),
		slog.Int("conversations", res.Conversations),
		slog.Int("messages", res.Messages),
		slog.Int("archived", res.Archived))
	return res, nil
}

// thread creates one conversation between owner and peer and fills it with
// alternating messages.
func (s *Seeder) thread(
	ctx context.Context,
	res *Result,
	p Preset,
	index int,
	owner, peer string,
	in service.CreateConversationInput,
	next func(fromOwner bool, n int) service.SendMessageInput,
) error {
	conv, err := s.inbox.CreateConversation(ctx, owner, in)
	if err != nil {
		return fmt.Errorf("create conversation for %s: %w", owner, err)
	}
	res.Conversations++

	for n := range p.MessagesPerConversation {
		fromOwner := n%2 == 0
		sender := peer
		if fromOwner {
			sender = owner
		}
		if _, err := s.inbox.SendMessage(ctx, sender, conv.ID, next(fromOwner, n)); err != nil {
			return fmt.Errorf("send message in %s: %w", conv.ID, err)
		}
		res.Messages++
	}

	pos := index + 1
	if p.MarkReadEvery > 0 && pos%p.MarkReadEvery == 0 {
		if _, err := s.inbox.MarkConversationRead(ctx, owner, conv.ID, nil); err != nil {
			return fmt.Errorf("mark %s read: %w", conv.ID, err)
		}
	}
	if p.ArchiveEvery > 0 && pos%p.ArchiveEvery == 0 {
		if err := s.inbox.ArchiveConversation(ctx, owner, conv.ID); err != nil {
			return fmt.Errorf("archive %s: %w", conv.ID, err)
		}
		res.Archived++
	}
	return nil
}
