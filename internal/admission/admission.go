// Package admission decides whether a connection attempt may join a room.
//
// Checks run in a fixed order and the first failure wins: project id
// format, project existence, credential presence, credential validity and,
// when enabled, project membership. A successful admission does not touch
// the room registry; the caller joins the room afterwards.
package admission

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"huddle/internal/metrics"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Rejection reasons, shown to the client verbatim.
const (
	ReasonInvalidProjectID = "Invalid projectId"
	ReasonProjectNotFound  = "Project not found"
	ReasonTokenMissing     = "Authentication error: Token missing"
	ReasonAuthFailed       = "Authentication failed"
	ReasonNotMember        = "Not a project member"
)

// Admission is the outcome of a successful check.
type Admission struct {
	Identity types.Identity
	Project  *types.Project
	RoomID   string
}

// Error is a rejected admission.
type Error struct {
	Code   string // metrics label
	Reason string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func reject(code, reason string, status int, cause error) *Error {
	return &Error{Code: code, Reason: reason, Status: status, Err: cause}
}

// Controller runs the admission checks against its collaborators.
type Controller struct {
	directory         interfaces.ProjectDirectory
	verifier          interfaces.IdentityVerifier
	requireMembership bool
	logger            zerolog.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithMembershipEnforcement rejects identities missing from the project's
// member list.
func WithMembershipEnforcement(enabled bool) Option {
	return func(c *Controller) { c.requireMembership = enabled }
}

// NewController creates an admission controller.
func NewController(directory interfaces.ProjectDirectory, verifier interfaces.IdentityVerifier, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		directory: directory,
		verifier:  verifier,
		logger:    logger.With().Str("component", "admission").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit validates projectID and credential. Rejections are returned as
// *Error; any unexpected collaborator failure is reported as
// ReasonAuthFailed.
func (c *Controller) Admit(ctx context.Context, credential, projectID string) (*Admission, error) {
	admission, err := c.admit(ctx, strings.TrimSpace(credential), projectID)
	if err != nil {
		metrics.Admissions.WithLabelValues(err.Code).Inc()
		event := c.logger.Info()
		if err.Code == "lookup_error" {
			event = c.logger.Error()
		}
		event.Err(err.Err).
			Str("project_id", projectID).
			Str("reason", err.Reason).
			Msg("connection rejected")
		return nil, err
	}

	metrics.Admissions.WithLabelValues("admitted").Inc()
	return admission, nil
}

func (c *Controller) admit(ctx context.Context, credential, projectID string) (*Admission, *Error) {
	if !types.IsValidProjectID(projectID) {
		return nil, reject("invalid_project_id", ReasonInvalidProjectID, http.StatusBadRequest, types.ErrInvalidProjectID)
	}
	projectID = types.NormalizeProjectID(projectID)

	project, err := c.directory.Lookup(ctx, projectID)
	if err != nil {
		if errors.Is(err, interfaces.ErrProjectNotFound) {
			return nil, reject("project_not_found", ReasonProjectNotFound, http.StatusNotFound, err)
		}
		return nil, reject("lookup_error", ReasonAuthFailed, http.StatusUnauthorized, err)
	}
	if project == nil {
		return nil, reject("project_not_found", ReasonProjectNotFound, http.StatusNotFound, interfaces.ErrProjectNotFound)
	}

	if credential == "" {
		return nil, reject("token_missing", ReasonTokenMissing, http.StatusUnauthorized, ErrCredentialMissing)
	}

	identity, err := c.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, reject("auth_failed", ReasonAuthFailed, http.StatusUnauthorized, err)
	}
	if identity == nil {
		return nil, reject("auth_failed", ReasonAuthFailed, http.StatusUnauthorized, ErrNoIdentity)
	}

	if c.requireMembership && !project.HasMember(identity.UserID) {
		return nil, reject("not_member", ReasonNotMember, http.StatusForbidden, ErrNotMember)
	}

	return &Admission{
		Identity: *identity,
		Project:  project,
		RoomID:   project.ID,
	}, nil
}

// BearerToken extracts the credential from an explicit token value or,
// failing that, an "Authorization: Bearer <token>" header value.
func BearerToken(explicit, authorization string) string {
	if token := strings.TrimSpace(explicit); token != "" {
		return token
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
