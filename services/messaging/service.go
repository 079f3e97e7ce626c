package messaging

import (
	"context"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"
	"medvive-settlement/services/notification"
	"medvive-settlement/services/scheduler"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultUnseenDelay = time.Minute

type JobScheduler interface {
	Schedule(ctx context.Context, req scheduler.ScheduleRequest) (*scheduler.Job, error)
	Cancel(ctx context.Context, ids ...string) error
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	chats     repository.Repository[Chat]
	receipts  repository.Repository[ChatReceipt]
	jobs      JobScheduler
	directory notification.Directory
	notifier  notification.Notifier
	delay     time.Duration
	now       func() time.Time
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Jobs      JobScheduler
	Directory notification.Directory
	Notifier  notification.Notifier
	Config    *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:        p.DB,
		node:      p.Node,
		chats:     repository.ProvideStore[Chat](p.DB),
		receipts:  repository.ProvideStore[ChatReceipt](p.DB),
		jobs:      p.Jobs,
		directory: p.Directory,
		notifier:  p.Notifier,
		delay:     defaultUnseenDelay,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if p.Config != nil && p.Config.Messaging.UnseenDelay > 0 {
		s.delay = p.Config.Messaging.UnseenDelay
	}
	return s
}

// OpenChat registers a chat and is a no-op for an existing one.
func (s *Service) OpenChat(ctx context.Context, req OpenChatRequest) (*Chat, error) {
	if req.PatientID == "" || req.ProviderID == "" {
		return nil, errutil.ValidationFailed("patient and provider ids are required", nil)
	}
	if req.PatientID == req.ProviderID {
		return nil, errutil.ValidationFailed("a chat needs two distinct participants", nil)
	}

	if req.ChatID != "" {
		existing, err := s.chats.FindOne(ctx, &Chat{ID: req.ChatID})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		req.ChatID = s.node.Generate().String()
	}

	chat := &Chat{ID: req.ChatID, PatientID: req.PatientID, ProviderID: req.ProviderID}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Service) chat(ctx context.Context, chatID string) (*Chat, error) {
	chat, err := s.chats.FindOne(ctx, &Chat{ID: chatID})
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, errutil.NotFound("chat not found", nil)
	}
	return chat, nil
}

// Unseen returns the receipt for a participant, zero valued when nothing was
// ever sent to them.
func (s *Service) Unseen(ctx context.Context, chatID, userID string) (*ChatReceipt, error) {
	receipt, err := s.receipts.FindOne(ctx, &ChatReceipt{ChatID: chatID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return &ChatReceipt{ChatID: chatID, UserID: userID}, nil
	}
	return receipt, nil
}

// RecordMessage counts a message for the receiver and restarts the unseen
// notification window for the pair. An empty receiverID means the other
// participant.
func (s *Service) RecordMessage(ctx context.Context, chatID, senderID, receiverID string) (*ChatReceipt, error) {
	log := logger.FromContext(ctx).With(zap.String("chat_id", chatID), zap.String("sender_id", senderID))

	chat, err := s.chat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.participant(senderID) {
		return nil, errutil.Forbidden("sender is not a participant of this chat", nil)
	}
	if counterpart := chat.counterpart(senderID); receiverID == "" {
		receiverID = counterpart
	} else if receiverID != counterpart {
		return nil, errutil.ValidationFailed("receiver is not the other participant of this chat", nil)
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"unseen":          gorm.Expr("chat_receipts.unseen + ?", 1),
			"last_message_at": now,
			"updated_at":      now,
		}),
	}).Create(&ChatReceipt{
		ChatID:        chatID,
		UserID:        receiverID,
		Unseen:        1,
		LastMessageAt: &now,
		UpdatedAt:     now,
	}).Error; err != nil {
		log.Error("failed to record unseen message", zap.Error(err))
		return nil, err
	}

	if err := s.jobs.Cancel(ctx, unseenJobID(senderID, receiverID), unseenJobID(receiverID, senderID)); err != nil {
		log.Warn("failed to cancel unseen notifications", zap.Error(err))
	}
	if _, err := s.jobs.Schedule(ctx, scheduler.ScheduleRequest{
		ID:      unseenJobID(senderID, receiverID),
		Type:    scheduler.UnseenNotification,
		RunAt:   now.Add(s.delay),
		Payload: unseenPayload{ChatID: chatID, SenderID: senderID, ReceiverID: receiverID},
	}); err != nil {
		log.Error("failed to schedule unseen notification", zap.Error(err))
	}

	return s.Unseen(ctx, chatID, receiverID)
}

// MarkSeen clears the participant's counter and drops pending notifications
// for the pair.
func (s *Service) MarkSeen(ctx context.Context, chatID, userID string) error {
	chat, err := s.chat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.participant(userID) {
		return errutil.Forbidden("user is not a participant of this chat", nil)
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&ChatReceipt{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Updates(map[string]any{"unseen": 0, "last_seen_at": now, "updated_at": now}).Error; err != nil {
		return err
	}

	other := chat.counterpart(userID)
	if err := s.jobs.Cancel(ctx, unseenJobID(other, userID), unseenJobID(userID, other)); err != nil {
		logger.FromContext(ctx).Warn("failed to cancel unseen notifications", zap.String("chat_id", chatID), zap.Error(err))
	}
	return nil
}

// notifyUnseen reports whether a notification went out.
func (s *Service) notifyUnseen(ctx context.Context, p unseenPayload) (bool, error) {
	log := logger.FromContext(ctx).With(zap.String("chat_id", p.ChatID), zap.String("receiver_id", p.ReceiverID))

	receipt, err := s.Unseen(ctx, p.ChatID, p.ReceiverID)
	if err != nil {
		return false, err
	}
	if receipt.Unseen == 0 {
		log.Debug("no unseen messages, skipping notification")
		return false, nil
	}

	receiver, err := s.directory.Lookup(ctx, p.ReceiverID)
	if errutil.Is(err, errutil.StatusNotFound) {
		log.Warn("receiver missing from directory")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sender, err := s.directory.Lookup(ctx, p.SenderID)
	if errutil.Is(err, errutil.StatusNotFound) {
		sender = &notification.Contact{UserID: p.SenderID}
	} else if err != nil {
		return false, err
	}

	name := sender.FullName
	if name == "" {
		name = "Someone"
	}
	s.notifier.Notify(ctx, notification.Message{
		To:       receiver.Recipient(),
		Template: notification.TemplateUnseenMessage,
		Subject:  name + " just messaged you",
		Data: map[string]any{
			"fullName":       name,
			"unseenMessages": receipt.Unseen,
			"profileImage":   sender.ProfileImage,
			"userType":       string(sender.Role),
		},
	})

	if err := s.jobs.Cancel(ctx, unseenJobID(p.ReceiverID, p.SenderID)); err != nil {
		log.Warn("failed to cancel reverse unseen notification", zap.Error(err))
	}
	return true, nil
}
