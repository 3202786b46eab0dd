package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zentria/wagate/pkg/crypto"
)

// Workspace CRUD lives in the platform backend; the gateway reads the
// credentials it needs to talk to the cloud API on a workspace's behalf and
// writes them only through SaveCredentials, which seals the token at rest.

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrWorkspaceDisabled = errors.New("workspace cloud API access disabled")
)

// WorkspaceCredentials is the read model the cloud-API adapter is built from.
type WorkspaceCredentials struct {
	WorkspaceID   string
	CloudAPIToken string
	PhoneNumberID string
	Enabled       bool
}

type workspaceModel struct {
	ID            string         `gorm:"primaryKey;column:id"`
	Name          string         `gorm:"column:name;not null"`
	CloudAPIToken sql.NullString `gorm:"column:cloud_api_token"` // base64(AES-GCM)
	PhoneNumberID sql.NullString `gorm:"column:phone_number_id"`
	Enabled       bool           `gorm:"column:enabled;default:true"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;not null"`
}

func (workspaceModel) TableName() string { return "workspaces" }

type WorkspaceGormRepository struct {
	db *gorm.DB
}

func NewWorkspaceGormRepository(db *gorm.DB) *WorkspaceGormRepository {
	return &WorkspaceGormRepository{db: db}
}

func (r *WorkspaceGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&workspaceModel{})
}

func (r *WorkspaceGormRepository) GetCredentials(ctx context.Context, workspaceID string) (WorkspaceCredentials, error) {
	var m workspaceModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", workspaceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return WorkspaceCredentials{}, ErrWorkspaceNotFound
		}
		return WorkspaceCredentials{}, err
	}

	token, err := openToken(m.CloudAPIToken.String)
	if err != nil {
		return WorkspaceCredentials{}, fmt.Errorf("workspace %s credential unreadable: %w", workspaceID, err)
	}

	return WorkspaceCredentials{
		WorkspaceID:   m.ID,
		CloudAPIToken: token,
		PhoneNumberID: m.PhoneNumberID.String,
		Enabled:       m.Enabled,
	}, nil
}

// SaveCredentials upserts a workspace's cloud API credentials. The token is
// sealed before it reaches the database.
func (r *WorkspaceGormRepository) SaveCredentials(ctx context.Context, creds WorkspaceCredentials) error {
	sealed, err := sealToken(creds.CloudAPIToken)
	if err != nil {
		return fmt.Errorf("failed to seal workspace credential: %w", err)
	}

	now := time.Now().UTC()
	m := workspaceModel{
		ID:            creds.WorkspaceID,
		Name:          creds.WorkspaceID,
		CloudAPIToken: sql.NullString{String: sealed, Valid: sealed != ""},
		PhoneNumberID: sql.NullString{String: creds.PhoneNumberID, Valid: creds.PhoneNumberID != ""},
		Enabled:       creds.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cloud_api_token", "phone_number_id", "enabled", "updated_at",
		}),
	}).Create(&m).Error
}

func sealToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	sealed, err := crypto.Encrypt([]byte(token))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func openToken(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	token, err := crypto.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(token), nil
}
