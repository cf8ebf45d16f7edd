package repo

import (
	"errors"
	"time"

	"design-studio/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrDesignNotFound = errors.New("design not found")

// DesignRepo represents the repository for the design model
type DesignRepo struct {
	db *gorm.DB
}

type DesignRepoInterface interface {
	CreateDesign(design *models.Design) (uuid.UUID, error)
	GetDesignByID(id uuid.UUID) (*models.Design, error)
	UpdateDesign(design *models.Design) (*models.Design, error)
	GetAllDesigns() ([]models.DesignSummary, error)
	DeleteDesign(id uuid.UUID) error
}

func NewDesignRepository(db *gorm.DB) DesignRepoInterface {
	return &DesignRepo{db: db}
}

// CreateDesign stores a new design at version 1, generating its id unless one is set
func (r *DesignRepo) CreateDesign(design *models.Design) (uuid.UUID, error) {
	id := design.UUID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now()
	design.UUID = id
	design.Version = 1
	design.CreatedAt = now
	design.UpdatedAt = now
	err := r.db.Create(design).Error
	return id, err
}

func (r *DesignRepo) GetDesignByID(id uuid.UUID) (*models.Design, error) {
	var design models.Design
	err := r.db.Where("uuid = ?", id).First(&design).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &design, nil
}

// UpdateDesign overwrites the editable fields and bumps the version. An empty ImageURL keeps
// the stored thumbnail.
func (r *DesignRepo) UpdateDesign(design *models.Design) (*models.Design, error) {
	var updated models.Design
	err := r.db.Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"name":        design.Name,
			"category":    design.Category,
			"size":        design.Size,
			"prompt":      design.Prompt,
			"canvas_data": design.CanvasData,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now(),
		}
		if design.ImageURL != "" {
			fields["image_url"] = design.ImageURL
		}
		res := tx.Model(&models.Design{}).Where("uuid = ?", design.UUID).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDesignNotFound
		}
		return tx.Where("uuid = ?", design.UUID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetAllDesigns lists designs, most recently edited first
func (r *DesignRepo) GetAllDesigns() ([]models.DesignSummary, error) {
	var designs []models.DesignSummary
	err := r.db.Model(&models.Design{}).
		Select("uuid", "name", "category", "size", "image_url", "version", "updated_at").
		Order("updated_at DESC").
		Find(&designs).Error
	return designs, err
}

func (r *DesignRepo) DeleteDesign(id uuid.UUID) error {
	res := r.db.Where("uuid = ?", id).Delete(&models.Design{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDesignNotFound
	}
	return nil
}
