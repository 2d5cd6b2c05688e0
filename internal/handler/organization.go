package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
)

// HandleEnsurePersonalOrg lazily creates the user's personal organization.
// The store's unique owner constraint absorbs concurrent and redelivered
// requests; the handler only decides the name.
func (s *Set) HandleEnsurePersonalOrg(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.EnsurePersonalOrgPayload](evt)
	if err != nil {
		return err
	}

	name := p.UserName
	if name == "" {
		name = "Personal"
	}

	org, created, err := s.organizations.EnsurePersonal(ctx, p.UserID, name)
	if err != nil {
		return fmt.Errorf("ensure personal organization: %w", err)
	}

	if created {
		s.log.InfoContext(ctx, "personal organization created",
			slog.String("organization_id", org.ID.String()),
			slog.String("owner_id", p.UserID.String()),
		)
	}
	return nil
}
