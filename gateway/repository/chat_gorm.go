package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zentria/wagate/gateway/domain/envelope"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateMessage marks a message whose external identifier has already
// been stored. Callers treat it as a no-op success.
var ErrDuplicateMessage = errors.New("message already stored")

// --- Persistence Models ---

type contactModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	WorkspaceID string    `gorm:"column:workspace_id;not null;uniqueIndex:idx_workspace_phone"`
	PhoneNumber string    `gorm:"column:phone_number;not null;uniqueIndex:idx_workspace_phone"`
	Name        string    `gorm:"column:name"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (contactModel) TableName() string { return "contacts" }

type chatModel struct {
	ID              string         `gorm:"primaryKey;column:id"`
	WorkspaceID     string         `gorm:"column:workspace_id;not null;uniqueIndex:idx_chat_identity"`
	SessionID       string         `gorm:"column:session_id;not null;uniqueIndex:idx_chat_identity"`
	RemoteID        string         `gorm:"column:remote_id;not null;uniqueIndex:idx_chat_identity"`
	Type            string         `gorm:"column:type;not null"`
	ContactPhone    sql.NullString `gorm:"column:contact_phone"`
	ContactName     sql.NullString `gorm:"column:contact_name"`
	GroupMeta       sql.NullString `gorm:"column:group_meta"` // JSON
	LastMessageBody sql.NullString `gorm:"column:last_message_body"`
	LastMessageType sql.NullString `gorm:"column:last_message_type"`
	LastMessageAt   *time.Time     `gorm:"column:last_message_at"`
	UnreadCount     int            `gorm:"column:unread_count;default:0"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null"`
}

func (chatModel) TableName() string { return "chats" }

type messageModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	ExternalID   string    `gorm:"column:external_id;not null;uniqueIndex"`
	WorkspaceID  string    `gorm:"column:workspace_id;not null;index"`
	SessionID    string    `gorm:"column:session_id;not null"`
	ChatRemoteID string    `gorm:"column:chat_remote_id;not null;index"`
	ContactID    string    `gorm:"column:contact_id;not null"`
	Body         string    `gorm:"column:body"`
	MessageType  string    `gorm:"column:message_type;not null"`
	ReceivedAt   time.Time `gorm:"column:received_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (messageModel) TableName() string { return "messages" }

type messageLogModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	MessageID string    `gorm:"column:message_id;not null;index"`
	Event     string    `gorm:"column:event;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (messageLogModel) TableName() string { return "message_logs" }

// --- Repository Implementation ---

type ChatGormRepository struct {
	db *gorm.DB
}

func NewChatGormRepository(db *gorm.DB) *ChatGormRepository {
	return &ChatGormRepository{db: db}
}

func (r *ChatGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&contactModel{},
		&chatModel{},
		&messageModel{},
		&messageLogModel{},
	)
}

// UpsertChat applies one chat envelope keyed by (workspace, session, remote
// id). Re-delivery updates the stored record in place; last write wins by
// delivery order.
func (r *ChatGormRepository) UpsertChat(ctx context.Context, env envelope.ChatEnvelope) error {
	model := toChatModel(env)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "workspace_id"}, {Name: "session_id"}, {Name: "remote_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "contact_phone", "contact_name", "group_meta",
			"last_message_body", "last_message_type", "last_message_at",
			"unread_count", "updated_at",
		}),
	}).Create(&model).Error
}

// UpsertChatBatch applies a whole sync batch inside one transaction so
// re-delivery of an already-applied batch is idempotent as a unit.
func (r *ChatGormRepository) UpsertChatBatch(ctx context.Context, envs []envelope.ChatEnvelope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, env := range envs {
			model := toChatModel(env)
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "workspace_id"}, {Name: "session_id"}, {Name: "remote_id"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"type", "contact_phone", "contact_name", "group_meta",
					"last_message_body", "last_message_type", "last_message_at",
					"unread_count", "updated_at",
				}),
			}).Create(&model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChat loads one stored chat by its identity key.
func (r *ChatGormRepository) GetChat(ctx context.Context, workspaceID, sessionID, remoteID string) (*envelope.ChatEnvelope, error) {
	var m chatModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND session_id = ? AND remote_id = ?", workspaceID, sessionID, remoteID).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	env := fromChatModel(m)
	return &env, nil
}

// CountChats returns the number of stored chats for a session.
func (r *ChatGormRepository) CountChats(ctx context.Context, workspaceID, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&chatModel{}).
		Where("workspace_id = ? AND session_id = ?", workspaceID, sessionID).
		Count(&count).Error
	return count, err
}

// ResolveContact finds or creates the contact for a phone number scoped to a
// workspace.
func (r *ChatGormRepository) ResolveContact(ctx context.Context, workspaceID, phoneNumber, name string) (string, error) {
	var id string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m contactModel
		err := tx.Where("workspace_id = ? AND phone_number = ?", workspaceID, phoneNumber).First(&m).Error
		if err == nil {
			id = m.ID
			if name != "" && m.Name == "" {
				return tx.Model(&contactModel{}).Where("id = ?", m.ID).
					Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()}).Error
			}
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		now := time.Now().UTC()
		m = contactModel{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			PhoneNumber: phoneNumber,
			Name:        name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		id = m.ID
		return nil
	})
	return id, err
}

// StoreInboundMessage creates the message record together with its log entry
// in a single transaction. A duplicate external ID returns
// ErrDuplicateMessage without touching either table.
func (r *ChatGormRepository) StoreInboundMessage(ctx context.Context, msg envelope.InboundMessage, contactID string) (string, error) {
	var messageID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&messageModel{}).
			Where("external_id = ?", msg.ExternalID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateMessage
		}

		now := time.Now().UTC()
		m := messageModel{
			ID:           uuid.NewString(),
			ExternalID:   msg.ExternalID,
			WorkspaceID:  msg.WorkspaceID,
			SessionID:    msg.SessionID,
			ChatRemoteID: msg.ChatRemoteID,
			ContactID:    contactID,
			Body:         msg.Body,
			MessageType:  msg.MessageType,
			ReceivedAt:   msg.Timestamp,
			CreatedAt:    now,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		log := messageLogModel{
			ID:        uuid.NewString(),
			MessageID: m.ID,
			Event:     "received",
			CreatedAt: now,
		}
		if err := tx.Create(&log).Error; err != nil {
			return err
		}

		messageID = m.ID
		return nil
	})
	return messageID, err
}

// CountMessages returns the number of stored messages for a workspace.
func (r *ChatGormRepository) CountMessages(ctx context.Context, workspaceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("workspace_id = ?", workspaceID).
		Count(&count).Error
	return count, err
}

// --- Conversions ---

func toChatModel(env envelope.ChatEnvelope) chatModel {
	now := time.Now().UTC()
	m := chatModel{
		ID:          uuid.NewString(),
		WorkspaceID: env.WorkspaceID,
		SessionID:   env.SessionID,
		RemoteID:    env.RemoteID,
		Type:        string(env.Type),
		UnreadCount: env.UnreadCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if env.Contact != nil {
		m.ContactPhone = sql.NullString{String: env.Contact.PhoneNumber, Valid: true}
		m.ContactName = sql.NullString{String: env.Contact.Name, Valid: true}
	}
	if env.Group != nil {
		if data, err := json.Marshal(env.Group); err == nil {
			m.GroupMeta = sql.NullString{String: string(data), Valid: true}
		}
	}
	if env.LastMessageBody != "" {
		m.LastMessageBody = sql.NullString{String: env.LastMessageBody, Valid: true}
	}
	if env.LastMessageType != "" {
		m.LastMessageType = sql.NullString{String: env.LastMessageType, Valid: true}
	}
	if !env.LastMessageAt.IsZero() {
		at := env.LastMessageAt
		m.LastMessageAt = &at
	}
	return m
}

func fromChatModel(m chatModel) envelope.ChatEnvelope {
	env := envelope.ChatEnvelope{
		WorkspaceID: m.WorkspaceID,
		SessionID:   m.SessionID,
		RemoteID:    m.RemoteID,
		Type:        envelope.ChatType(m.Type),
		UnreadCount: m.UnreadCount,
	}
	if m.ContactPhone.Valid {
		env.Contact = &envelope.Contact{
			PhoneNumber: m.ContactPhone.String,
			Name:        m.ContactName.String,
		}
	}
	if m.GroupMeta.Valid && m.GroupMeta.String != "" {
		var group envelope.GroupInfo
		if err := json.Unmarshal([]byte(m.GroupMeta.String), &group); err == nil {
			env.Group = &group
		}
	}
	if m.LastMessageBody.Valid {
		env.LastMessageBody = m.LastMessageBody.String
	}
	if m.LastMessageType.Valid {
		env.LastMessageType = m.LastMessageType.String
	}
	if m.LastMessageAt != nil {
		env.LastMessageAt = *m.LastMessageAt
	}
	return env
}
