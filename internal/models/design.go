package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Design represents the database model
type Design struct {
	UUID       uuid.UUID      `gorm:"type:uuid;primarykey" json:"id"`
	Name       string         `gorm:"not null;default:'Untitled Design'" json:"name"`
	Category   string         `gorm:"not null;default:'canvas'" json:"category"`
	Size       string         `json:"size"`
	Prompt     string         `json:"prompt"`
	CanvasData datatypes.JSON `gorm:"type:jsonb" json:"canvasData"`
	ImageURL   string         `json:"imageUrl,omitempty"`
	Version    int            `gorm:"not null;default:1" json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DesignSummary is the list view of a design, without canvas content.
type DesignSummary struct {
	UUID      uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Size      string    `json:"size"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
