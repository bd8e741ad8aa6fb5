// internal/tenant/guard/membership.go
//
// societe_users-table query helpers.
//
// Context
// -------
// One membership row links a user to a societe with a tenant-scoped role,
// an optional validity window, an optional site allow-list, and optional
// per-membership permission grants and restrictions.  The guard needs one
// lookup per request plus a fire-and-forget activity write.
//
// Schema reference (2025-07-02)
//
//	CREATE TABLE societe_users (
//	    id                     UUID PRIMARY KEY,
//	    societe_id             UUID NOT NULL REFERENCES societes (id),
//	    user_id                UUID NOT NULL,
//	    role                   VARCHAR(32) NOT NULL DEFAULT 'USER',
//	    actif                  BOOLEAN     NOT NULL DEFAULT TRUE,
//	    is_default             BOOLEAN     NOT NULL DEFAULT FALSE,
//	    valid_from             TIMESTAMPTZ NULL,
//	    valid_until            TIMESTAMPTZ NULL,
//	    allowed_site_ids       JSONB NULL,
//	    granted_permissions    JSONB NOT NULL DEFAULT '[]'::jsonb,
//	    restricted_permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
//	    last_activity_at       TIMESTAMPTZ NULL,
//	    created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (societe_id, user_id)
//	);
package guard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNoMembership is returned when the caller has no live membership row
// for the requested societe.
var ErrNoMembership = errors.New("no societe membership")

// Membership mirrors one societe_users row, with the JSONB lists decoded.
type Membership struct {
	ID          uuid.UUID  `db:"id"`
	SocieteID   uuid.UUID  `db:"societe_id"`
	UserID      uuid.UUID  `db:"user_id"`
	Role        string     `db:"role"`
	Actif       bool       `db:"actif"`
	IsDefault   bool       `db:"is_default"`
	ValidFrom   *time.Time `db:"valid_from"`
	ValidUntil  *time.Time `db:"valid_until"`
	RawSites    []byte     `db:"allowed_site_ids"`
	RawGranted  []byte     `db:"granted_permissions"`
	RawRestrict []byte     `db:"restricted_permissions"`

	AllowedSites []string `db:"-"`
	Granted      []string `db:"-"`
	Restricted   []string `db:"-"`
}

// WithinValidity reports whether the membership is inside its optional
// time window at now.
func (m *Membership) WithinValidity(now time.Time) bool {
	if m.ValidFrom != nil && now.Before(*m.ValidFrom) {
		return false
	}
	if m.ValidUntil != nil && now.After(*m.ValidUntil) {
		return false
	}
	return true
}

// AllowsSite reports whether the membership's site allow-list admits the
// given site.  An absent list means no restriction.
func (m *Membership) AllowsSite(siteID string) bool {
	if len(m.AllowedSites) == 0 {
		return true
	}
	for _, s := range m.AllowedSites {
		if s == siteID {
			return true
		}
	}
	return false
}

// MembershipStore reads and touches societe_users rows on the control-
// plane database.
type MembershipStore struct {
	db *sqlx.DB
}

// NewMembershipStore binds a store to the control-plane pool.
func NewMembershipStore(db *sqlx.DB) *MembershipStore {
	return &MembershipStore{db: db}
}

// Find fetches the active membership for (societeID, userID).  Returns
// ErrNoMembership when absent or inactive.
func (s *MembershipStore) Find(ctx context.Context, societeID, userID uuid.UUID) (*Membership, error) {
	const q = `
        SELECT id, societe_id, user_id, role, actif, is_default,
               valid_from, valid_until, allowed_site_ids,
               granted_permissions, restricted_permissions
        FROM   societe_users
        WHERE  societe_id = $1
          AND  user_id    = $2
          AND  actif      = TRUE
        LIMIT  1`
	var m Membership
	if err := s.db.GetContext(ctx, &m, q, societeID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoMembership
		}
		return nil, err
	}
	if err := m.decode(); err != nil {
		return nil, err
	}
	return &m, nil
}

// TouchActivity records last-activity on the membership row.  Callers run
// it off the request path; failure must not fail the request.
func (s *MembershipStore) TouchActivity(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE societe_users SET last_activity_at = now() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id)
	return err
}

func (m *Membership) decode() error {
	if len(m.RawSites) > 0 {
		if err := json.Unmarshal(m.RawSites, &m.AllowedSites); err != nil {
			return err
		}
	}
	if len(m.RawGranted) > 0 {
		if err := json.Unmarshal(m.RawGranted, &m.Granted); err != nil {
			return err
		}
	}
	if len(m.RawRestrict) > 0 {
		if err := json.Unmarshal(m.RawRestrict, &m.Restricted); err != nil {
			return err
		}
	}
	return nil
}
