package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization groups users around shared content. Every user gets exactly
// one personal organization, created lazily by the ensure-personal workflow
// step; the unique owner constraint in the store absorbs concurrent
// creation races.
type Organization struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	Personal  bool
	CreatedAt time.Time
}
