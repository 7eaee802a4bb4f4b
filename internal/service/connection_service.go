package service

import (
	"context"
	"fmt"

	"github.com/weiawesome/realm-live/internal/audit"
	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/hub"
	"github.com/weiawesome/realm-live/internal/metrics"
	"github.com/weiawesome/realm-live/pkg/log"
)

type connectionService struct {
	registry Registrar
	verifier IdentityVerifier
	metrics  *metrics.Metrics
}

func NewConnectionService(registry Registrar, verifier IdentityVerifier, m *metrics.Metrics) ConnectionService {
	return &connectionService{
		registry: registry,
		verifier: verifier,
		metrics:  m,
	}
}

// HandleAuth completes the handshake. A rejected token leaves the channel
// unauthenticated and open and nothing is sent back, so the client may retry.
// The channel is registered before auth_success is queued.
func (s *connectionService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	if c.Session.IsClosed() {
		return domain.ErrSessionClosed
	}

	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.metrics.IncrementHandshake(false)
		audit.Denied(ctx, audit.ActionWSAuthFailed, c.Session.Identity().String(), c.ID, "websocket auth rejected")
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	first, err := c.Session.Authenticate(identity)
	if err != nil {
		s.metrics.IncrementHandshake(false)
		return err
	}

	if err := s.registry.Register(identity, c); err != nil {
		return fmt.Errorf("failed to register channel: %w", err)
	}
	s.metrics.IncrementHandshake(true)

	if first {
		audit.LogTarget(ctx, audit.ActionWSAuth, identity.String(), c.ID, "websocket authenticated")
	}
	return c.SendMessage(domain.AuthSuccess{})
}

// HandlePing answers in any open state.
func (s *connectionService) HandlePing(_ context.Context, c *hub.Client) error {
	if c.Session.IsClosed() {
		return domain.ErrSessionClosed
	}
	return c.SendMessage(domain.Pong{})
}

// HandleDisconnect closes the session and removes the channel from the
// registry before returning.
func (s *connectionService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	if !c.Session.Close() {
		return
	}
	s.registry.Unregister(c)

	identity := c.Session.Identity()
	if identity != "" {
		audit.LogTarget(ctx, audit.ActionWSDisconnect, identity.String(), c.ID, "websocket disconnected")
		return
	}
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldClientID, c.ID).Msg("unauthenticated client disconnected")
}
