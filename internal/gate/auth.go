package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Grant statuses reported by a GrantFlow.
const (
	GrantPending   = "pending"
	GrantCompleted = "completed"
	GrantFailed    = "failed"
)

// Grant is the provider's view of one authorization attempt.
type Grant struct {
	ID     string
	Status string
	// URL is where the user completes the grant out of band.
	URL string
}

// GrantFlow is the provider API that drives out-of-band authorization.
type GrantFlow interface {
	// Start begins (or looks up) authorization of toolName for userID.
	Start(ctx context.Context, toolName, userID string) (*Grant, error)
	// Wait blocks until the grant is no longer pending.
	Wait(ctx context.Context, grantID string) (*Grant, error)
}

// NoGrant is a GrantFlow for providers whose tools need no per-user grant.
type NoGrant struct{}

func (NoGrant) Start(ctx context.Context, toolName, userID string) (*Grant, error) {
	return &Grant{Status: GrantCompleted}, nil
}

func (NoGrant) Wait(ctx context.Context, grantID string) (*Grant, error) {
	return &Grant{ID: grantID, Status: GrantCompleted}, nil
}

// AuthorizationError means userID may not use ToolName until the grant is
// resolved out of band.
type AuthorizationError struct {
	ToolName string
	UserID   string
	Err      error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization of tool '%s' for user '%s' failed: %v", e.ToolName, e.UserID, e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// NoticeFunc shows a status line to the user.
type NoticeFunc func(message string)

type authKey struct {
	userID   string
	toolName string
}

// Authorizer ensures each (user, tool) pair completes the grant flow at most
// once per process. Failed attempts are not remembered.
type Authorizer struct {
	flow   GrantFlow
	notice NoticeFunc
	logger *zap.Logger

	// mu is held across the grant flow so concurrent callers for the same
	// pair never start a second flow.
	mu      sync.Mutex
	granted map[authKey]struct{}
}

// NewAuthorizer creates an Authorizer over flow. notice may be nil.
func NewAuthorizer(flow GrantFlow, notice NoticeFunc, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notice == nil {
		notice = func(string) {}
	}
	return &Authorizer{
		flow:    flow,
		notice:  notice,
		logger:  logger,
		granted: make(map[authKey]struct{}),
	}
}

// Authorize makes sure userID is authorized to use toolName, driving the
// out-of-band grant flow if needed.
func (a *Authorizer) Authorize(ctx context.Context, toolName, userID string) error {
	key := authKey{userID: userID, toolName: toolName}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.granted[key]; ok {
		return nil
	}

	fail := func(err error) error {
		a.logger.Warn("authorization failed",
			zap.String("tool", toolName),
			zap.String("user", userID),
			zap.Error(err),
		)
		return &AuthorizationError{ToolName: toolName, UserID: userID, Err: err}
	}

	grant, err := a.flow.Start(ctx, toolName, userID)
	if err != nil {
		return fail(err)
	}
	if grant == nil {
		return fail(errors.New("provider returned no authorization"))
	}

	if grant.Status != GrantCompleted {
		if grant.Status == GrantFailed {
			return fail(fmt.Errorf("provider rejected the authorization request"))
		}

		a.logger.Info("authorization required",
			zap.String("tool", toolName),
			zap.String("user", userID),
			zap.String("grant", grant.ID),
		)
		a.notice(fmt.Sprintf("Authorization required for tool call %s", toolName))
		if grant.URL != "" {
			a.notice(fmt.Sprintf("Please authorize in your browser: %s", grant.URL))
		}
		a.notice("Waiting for you to complete authorization...")

		grant, err = a.flow.Wait(ctx, grant.ID)
		if err != nil {
			return fail(err)
		}
		if grant == nil {
			return fail(errors.New("provider returned no authorization status"))
		}
		if grant.Status != GrantCompleted {
			return fail(fmt.Errorf("authorization ended with status %q", grant.Status))
		}
		a.notice("Authorization granted. Resuming execution...")
	}

	a.granted[key] = struct{}{}
	a.logger.Debug("authorized", zap.String("tool", toolName), zap.String("user", userID))
	return nil
}

// Authorized reports whether the pair has been authorized in this process.
func (a *Authorizer) Authorized(toolName, userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.granted[authKey{userID: userID, toolName: toolName}]
	return ok
}
