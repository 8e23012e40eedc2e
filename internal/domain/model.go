package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/database"
)

// ProjectModel is the GORM model for the projects table.
type ProjectModel struct {
	ID        string               `gorm:"type:varchar(64);primaryKey"`
	Name      string               `gorm:"type:varchar(200);not null"`
	OwnerID   string               `gorm:"type:varchar(64);index"`
	Members   database.StringArray `gorm:"type:text"`
	CreatedAt time.Time            `gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt       `gorm:"index"`
}

// TableName specifies the table name for ProjectModel.
func (ProjectModel) TableName() string {
	return "projects"
}

// ToDomain converts ProjectModel to domain Project.
func (m *ProjectModel) ToDomain() *Project {
	return &Project{
		ID:        m.ID,
		Name:      m.Name,
		OwnerID:   m.OwnerID,
		Members:   []string(m.Members),
		CreatedAt: m.CreatedAt,
	}
}

// ProjectToModel converts domain Project to ProjectModel.
func ProjectToModel(p *Project) *ProjectModel {
	return &ProjectModel{
		ID:        p.ID,
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		Members:   database.StringArray(p.Members),
		CreatedAt: p.CreatedAt,
	}
}
