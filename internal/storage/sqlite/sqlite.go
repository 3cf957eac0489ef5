package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fenggwsx/PairChat/internal/config"
	"github.com/fenggwsx/PairChat/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store.
type Store struct {
	db *gorm.DB
}

type userModel struct {
	Username     string `gorm:"primaryKey"`
	Status       string `gorm:"index"`
	ConnectionID *string
	UpdatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

type chatModel struct {
	ID        uint   `gorm:"primaryKey"`
	Sender    string `gorm:"not null"`
	Receiver  string `gorm:"not null;index:idx_chats_receiver_delivered,priority:1"`
	Message   string `gorm:"type:text;not null"`
	Delivered bool   `gorm:"not null;default:false;index:idx_chats_receiver_delivered,priority:2"`
	CreatedAt time.Time
}

func (chatModel) TableName() string { return "chats" }

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer at a time.
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&userModel{}, &chatModel{})
}

// CreateMessage stores a new undelivered chat record.
func (s *Store) CreateMessage(ctx context.Context, msg *storage.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := chatModel{
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Message:   msg.Body,
		CreatedAt: createdAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	msg.Delivered = false
	return nil
}

// MarkDelivered flags the given rows as delivered in one update.
func (s *Store) MarkDelivered(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&chatModel{}).
		Where("id IN ?", ids).
		Update("delivered", true).Error
}

// FindUndelivered lists undelivered messages addressed to receiver, oldest first.
func (s *Store) FindUndelivered(ctx context.Context, receiver string) ([]storage.ChatMessage, error) {
	var models []chatModel
	err := s.db.WithContext(ctx).
		Where("receiver = ? AND delivered = ?", receiver, false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	messages := make([]storage.ChatMessage, 0, len(models))
	for _, model := range models {
		messages = append(messages, toChatMessage(model))
	}
	return messages, nil
}

// GetMessage retrieves a chat record by id.
func (s *Store) GetMessage(ctx context.Context, id uint) (*storage.ChatMessage, error) {
	var model chatModel
	if err := s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	msg := toChatMessage(model)
	return &msg, nil
}

// UpsertUserStatus inserts or updates the presence record for username.
func (s *Store) UpsertUserStatus(ctx context.Context, username string, status storage.Status, connectionID string) error {
	model := userModel{
		Username:  username,
		Status:    string(status),
		UpdatedAt: time.Now().UTC(),
	}
	if connectionID != "" {
		model.ConnectionID = &connectionID
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "connection_id", "updated_at"}),
	}).Create(&model).Error
}

// GetUser retrieves a presence record by username.
func (s *Store) GetUser(ctx context.Context, username string) (*storage.User, error) {
	var model userModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	user := &storage.User{
		Username:  model.Username,
		Status:    storage.Status(model.Status),
		UpdatedAt: model.UpdatedAt,
	}
	if model.ConnectionID != nil {
		user.ConnectionID = *model.ConnectionID
	}
	return user, nil
}

func toChatMessage(model chatModel) storage.ChatMessage {
	return storage.ChatMessage{
		ID:        model.ID,
		Sender:    model.Sender,
		Receiver:  model.Receiver,
		Body:      model.Message,
		CreatedAt: model.CreatedAt,
		Delivered: model.Delivered,
	}
}
