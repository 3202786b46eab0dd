package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/zentria/wagate/gateway/domain/session"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type sessionModel struct {
	ID             string         `gorm:"primaryKey;column:id"`
	WorkspaceID    string         `gorm:"column:workspace_id;not null;index"`
	Provider       string         `gorm:"column:provider;not null"`
	Status         string         `gorm:"column:status;not null;index"`
	PhoneNumber    sql.NullString `gorm:"column:phone_number"`
	HealthScore    int            `gorm:"column:health_score;default:100"`
	IsPrimary      bool           `gorm:"column:is_primary;default:false"`
	InstanceURL    sql.NullString `gorm:"column:instance_url"`
	InstanceIndex  int            `gorm:"column:instance_index;default:0"`
	LastActivityAt *time.Time     `gorm:"column:last_activity_at"`
	ConnectedAt    *time.Time     `gorm:"column:connected_at"`
	Metadata       sql.NullString `gorm:"column:metadata"` // JSON
	CreatedAt      time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null"`
}

func (sessionModel) TableName() string { return "sessions" }

// --- Repository Implementation ---

type SessionGormRepository struct {
	db *gorm.DB
}

func NewSessionGormRepository(db *gorm.DB) *SessionGormRepository {
	return &SessionGormRepository{db: db}
}

func (r *SessionGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&sessionModel{})
}

func (r *SessionGormRepository) Create(ctx context.Context, s *session.Session) error {
	// At most one primary per workspace: creating a new primary demotes the
	// old one inside the same transaction.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.IsPrimary {
			if err := tx.Model(&sessionModel{}).
				Where("workspace_id = ? AND is_primary = ?", s.WorkspaceID, true).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		model := toSessionModel(s)
		return tx.Create(&model).Error
	})
}

func (r *SessionGormRepository) GetByID(ctx context.Context, id string) (*session.Session, error) {
	var m sessionModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return fromSessionModel(m), nil
}

func (r *SessionGormRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*session.Session, error) {
	var models []sessionModel
	if err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return fromSessionModels(models), nil
}

func (r *SessionGormRepository) ConnectedByWorkspace(ctx context.Context, workspaceID string) ([]*session.Session, error) {
	var models []sessionModel
	if err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND status = ?", workspaceID, string(session.StatusConnected)).
		Order("is_primary DESC, health_score DESC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return fromSessionModels(models), nil
}

func (r *SessionGormRepository) ListByStatus(ctx context.Context, status session.Status) ([]*session.Session, error) {
	var models []sessionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return fromSessionModels(models), nil
}

func (r *SessionGormRepository) UpdateStatus(ctx context.Context, id string, to session.Status, meta session.Metadata) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m sessionModel
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return session.ErrSessionNotFound
			}
			return err
		}

		if !session.CanTransition(session.Status(m.Status), to) {
			return session.ErrInvalidTransition
		}

		updates := map[string]any{
			"status":     string(to),
			"metadata":   marshalMetadata(meta),
			"updated_at": time.Now().UTC(),
		}
		if to == session.StatusConnected {
			now := time.Now().UTC()
			updates["connected_at"] = &now
		}
		return tx.Model(&sessionModel{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *SessionGormRepository) Update(ctx context.Context, s *session.Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.IsPrimary {
			if err := tx.Model(&sessionModel{}).
				Where("workspace_id = ? AND is_primary = ? AND id <> ?", s.WorkspaceID, true, s.ID).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		model := toSessionModel(s)
		return tx.Save(&model).Error
	})
}

func (r *SessionGormRepository) TouchActivity(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_activity_at": &now, "updated_at": now}).Error
}

// --- Conversions ---

func toSessionModel(s *session.Session) sessionModel {
	m := sessionModel{
		ID:             s.ID,
		WorkspaceID:    s.WorkspaceID,
		Provider:       string(s.Provider),
		Status:         string(s.Status),
		HealthScore:    s.HealthScore,
		IsPrimary:      s.IsPrimary,
		InstanceIndex:  s.Instance.Index,
		LastActivityAt: s.LastActivityAt,
		ConnectedAt:    s.ConnectedAt,
		Metadata:       sql.NullString{String: marshalMetadata(s.Metadata), Valid: true},
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.PhoneNumber != "" {
		m.PhoneNumber = sql.NullString{String: s.PhoneNumber, Valid: true}
	}
	if s.Instance.URL != "" {
		m.InstanceURL = sql.NullString{String: s.Instance.URL, Valid: true}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = time.Now().UTC()
	return m
}

func fromSessionModel(m sessionModel) *session.Session {
	s := &session.Session{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		Provider:    session.ProviderKind(m.Provider),
		Status:      session.Status(m.Status),
		HealthScore: m.HealthScore,
		IsPrimary:   m.IsPrimary,
		Instance: session.InstanceRef{
			URL:   m.InstanceURL.String,
			Index: m.InstanceIndex,
		},
		LastActivityAt: m.LastActivityAt,
		ConnectedAt:    m.ConnectedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.PhoneNumber.Valid {
		s.PhoneNumber = m.PhoneNumber.String
	}
	if m.Metadata.Valid && m.Metadata.String != "" {
		_ = json.Unmarshal([]byte(m.Metadata.String), &s.Metadata)
	}
	return s
}

func fromSessionModels(models []sessionModel) []*session.Session {
	res := make([]*session.Session, len(models))
	for i, m := range models {
		res[i] = fromSessionModel(m)
	}
	return res
}

func marshalMetadata(meta session.Metadata) string {
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}
