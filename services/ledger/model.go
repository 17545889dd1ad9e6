package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
)

// Deployment is one recorded upload, as served by the API.
type Deployment struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Bucket     string    `json:"bucket" db:"bucket"`
	ObjectKey  string    `json:"object_key" db:"object_key"`
	URL        string    `json:"url" db:"url"`
	Trigger    string    `json:"trigger" db:"trigger"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	DeployedAt time.Time `json:"deployed_at" db:"deployed_at"`
}

type deploymentModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Bucket     string            `gorm:"type:text;not null;index"`
	ObjectKey  string            `gorm:"type:text;not null;index"`
	URL        string            `gorm:"type:text;not null"`
	Trigger    string            `gorm:"type:text;not null"`
	SizeBytes  int64             `gorm:"type:bigint;not null"`
	Meta       datatypes.JSONMap `gorm:"type:jsonb"`
	DeployedAt time.Time         `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (deploymentModel) TableName() string { return "deployments" }

func modelFromEvent(evt deployer.DeployedEvent) deploymentModel {
	return deploymentModel{
		ID:         evt.ID,
		Bucket:     evt.Bucket,
		ObjectKey:  evt.ObjectKey,
		URL:        evt.URL,
		Trigger:    string(evt.Trigger),
		SizeBytes:  evt.SizeBytes,
		DeployedAt: evt.DeployedAt,
	}
}

func (m deploymentModel) toAPI() Deployment {
	return Deployment{
		ID:         m.ID,
		Bucket:     m.Bucket,
		ObjectKey:  m.ObjectKey,
		URL:        m.URL,
		Trigger:    m.Trigger,
		SizeBytes:  m.SizeBytes,
		DeployedAt: m.DeployedAt,
	}
}
