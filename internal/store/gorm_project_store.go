package store

import (
	"context"
	"errors"
	"regexp"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// sqlProjectID accepts uuids as well as short slugs such as "proj-42".
var sqlProjectID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// GormProjectStore implements ProjectStore using GORM.
type GormProjectStore struct {
	db *gorm.DB
}

// NewGormProjectStore creates a new GORM-based project store.
func NewGormProjectStore(db *gorm.DB) *GormProjectStore {
	return &GormProjectStore{db: db}
}

// ValidID implements ProjectStore.
func (s *GormProjectStore) ValidID(id string) bool {
	return sqlProjectID.MatchString(id)
}

// FindByID retrieves a project by ID.
func (s *GormProjectStore) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	l := log.Ctx(ctx)

	var model domain.ProjectModel
	result := s.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldProjectID, id).Msg("failed to get project by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}
