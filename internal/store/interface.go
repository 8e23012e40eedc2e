package store

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
)

var (
	ErrProjectNotFound = errors.New("project not found")
)

// ProjectStore resolves the project a connection asks to join.
type ProjectStore interface {
	// ValidID reports whether id is well formed for this store. It never
	// touches the backend.
	ValidID(id string) bool
	FindByID(ctx context.Context, id string) (*domain.Project, error)
}
