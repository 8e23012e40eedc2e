package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/store"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/middleware"
)

const (
	QueryProjectID = "projectId"
	QueryToken     = "token"
)

// Handshake is what a client presents when it opens a connection.
type Handshake struct {
	ProjectID  string
	Credential string
}

// HandshakeFromRequest extracts the project id and credential from an upgrade
// request. The token query parameter wins over the Authorization header.
func HandshakeFromRequest(r *http.Request) Handshake {
	q := r.URL.Query()
	h := Handshake{
		ProjectID:  strings.TrimSpace(q.Get(QueryProjectID)),
		Credential: strings.TrimSpace(q.Get(QueryToken)),
	}
	if h.Credential == "" {
		h.Credential = middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey))
	}
	return h
}

// Authenticator decides whether a connection attempt may join its project
// room.
type Authenticator struct {
	projects store.ProjectStore
	verifier TokenVerifier
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(projects store.ProjectStore, verifier TokenVerifier) *Authenticator {
	return &Authenticator{projects: projects, verifier: verifier}
}

// Authenticate checks, in order, the project id format, the project's
// existence, the presence of a credential and its validity. Rejections are
// *domain.AuthError. A store outage is reported as domain.ErrStoreUnavailable.
func (a *Authenticator) Authenticate(ctx context.Context, h Handshake) (domain.ConnContext, error) {
	l := log.Ctx(ctx)

	if !a.projects.ValidID(h.ProjectID) {
		return domain.ConnContext{}, domain.NewAuthError(domain.ReasonInvalidProjectID, nil)
	}

	project, err := a.projects.FindByID(ctx, h.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return domain.ConnContext{}, domain.NewAuthError(domain.ReasonProjectNotFound, nil)
		}
		l.Error().Err(err).Str(log.FieldProjectID, h.ProjectID).Msg("project lookup failed during handshake")
		return domain.ConnContext{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	if h.Credential == "" {
		return domain.ConnContext{}, domain.NewAuthError(domain.ReasonMissingCredential, nil)
	}

	principal, err := a.verifier.Verify(ctx, h.Credential)
	if err != nil {
		return domain.ConnContext{}, domain.NewAuthError(domain.ReasonInvalidCredential, err)
	}
	if principal == nil || principal.ID == "" {
		return domain.ConnContext{}, domain.NewAuthError(domain.ReasonInvalidCredential, errors.New("credential carries no identity"))
	}

	return domain.NewConnContext(*principal, project.ID), nil
}
