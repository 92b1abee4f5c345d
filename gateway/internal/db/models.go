package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
// This ensures every record has a valid time-ordered ID before insertion.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with a nullable DeletedAt field for soft deletion.
// GORM automatically filters out soft-deleted records from all queries unless
// Unscoped() is used explicitly.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Routing config — the one piece of Gateway state allowed to survive a
// restart. Session/tunnel state itself is never persisted.
// -----------------------------------------------------------------------------

// RoutingMode mirrors the Query Router's decision-table input.
type RoutingMode string

const (
	RoutingModeAuto        RoutingMode = "auto"
	RoutingModeGatewayOnly RoutingMode = "gateway_only"
	RoutingModeDirectOnly  RoutingMode = "direct_only"
)

// DatabaseRecord is the per-database routing configuration the Query Router
// and Direct Executor read. DatabaseID is the external identifier the
// Authenticator resolves an Agent's gateway_token to — it is also this
// row's primary key, so lookups never need a join.
type DatabaseRecord struct {
	DatabaseID  uuid.UUID   `gorm:"type:text;primaryKey"`
	TenantID    string      `gorm:"not null;index"`
	Name        string      `gorm:"not null"`
	Mode        RoutingMode `gorm:"not null;default:'auto'"`
	DirectDSN   EncryptedString `gorm:"type:text"` // empty when no direct path is configured
	DirectDriver string     `gorm:"default:''"`    // "postgres", "sqlite", "mysql"
	Enabled     bool        `gorm:"not null;default:true"`
	CreatedAt   time.Time   `gorm:"not null"`
	UpdatedAt   time.Time   `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Admin console — ambient operability surface, not a chatbot-facing feature.
// -----------------------------------------------------------------------------

// AdminUser is an operator account for the admin console. There is exactly
// one role ("operator") — the admin console's scope is deliberately minimal.
type AdminUser struct {
	base
	Email       string          `gorm:"uniqueIndex;not null"`
	Password    EncryptedString `gorm:"type:text;not null"`
	DisplayName string          `gorm:"not null"`
	IsActive    bool            `gorm:"not null;default:true"`
	LastLoginAt *time.Time
}

// RefreshToken stores a hashed refresh token for an AdminUser session. The
// raw token is never persisted — only its SHA-256 hash. Tokens are rotated
// on every use.
type RefreshToken struct {
	base
	AdminUserID uuid.UUID `gorm:"type:text;not null;index"`
	TokenHash   string    `gorm:"not null;uniqueIndex"`
	ExpiresAt   time.Time `gorm:"not null;index"`
	RevokedAt   *time.Time
}

// -----------------------------------------------------------------------------
// Settings — SMTP/webhook config for the alerting package.
// -----------------------------------------------------------------------------

// Setting is a generic key-value configuration entry. Keys are namespaced
// by convention ("smtp.host", "webhook.url"). Sensitive values are
// encrypted at the application layer via EncryptedString before being
// persisted.
type Setting struct {
	Key       string          `gorm:"primaryKey"`
	Value     EncryptedString `gorm:"type:text;not null"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime"`
}

// -----------------------------------------------------------------------------
// Alerting — operator-facing notices (see internal/alerting).
// -----------------------------------------------------------------------------

// AlertLog records one fired operator alert for audit/history purposes.
// Delivery (email/webhook) is fire-and-forget from the caller's
// perspective; this row is the durable record that it was attempted.
type AlertLog struct {
	base
	Event   string `gorm:"not null"` // "session.expired", "auth.failed", "direct.failed"
	Subject string `gorm:"not null"`
	Body    string `gorm:"type:text;not null"`
	Payload string `gorm:"type:text;default:'{}'"` // JSON, extra context
}
