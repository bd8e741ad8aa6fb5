// internal/tenant/seed/seed.go
//
// Default-state seeding for freshly migrated tenant databases.
//
// Context
// -------
// A tenant is only usable once it has at least one login, so the user pass
// is the guaranteed part of initialization: an administrator and a
// standard account, each with per-user settings and notification
// preferences, linked to the tenant in the control-plane membership table.
// User creations are independent — a failure on user N is collected and
// user N+1 is still attempted.
//
// System parameters and business reference data are enhancements, not
// contract: if their target table does not exist in this tenant database
// the step is skipped, and any insert failure is logged and swallowed.
// All secondary inserts are idempotent (insert-if-absent on the natural
// key), so re-running the initializer cannot create duplicates.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/topsteel/erp-core/internal/tenant"
)

// Role names assigned to the default accounts.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// userTemplate is one fixed default-account shape.
type userTemplate struct {
	Nom      string
	Prenom   string
	email    func(code string) string
	password string
	role     string
}

var defaultUsers = []userTemplate{
	{
		Nom:      "Admin",
		Prenom:   "Société",
		email:    func(code string) string { return "admin@" + code + ".topsteel.local" },
		password: "Admin123!",
		role:     RoleAdmin,
	},
	{
		Nom:      "Utilisateur",
		Prenom:   "Standard",
		email:    func(code string) string { return "user@" + code + ".topsteel.local" },
		password: "User123!",
		role:     RoleUser,
	},
}

// CreatedUser reports one successfully seeded account.
type CreatedUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// Report is the partial-success outcome of one initializer run.
type Report struct {
	Users  []CreatedUser
	Errors []error // per-user failures, collected, never aborting the batch
}

// Initializer seeds a tenant database.  The control-plane pool is needed
// for the membership rows that link seeded users to the societe.
type Initializer struct {
	control    *sqlx.DB
	production bool
}

// New returns an Initializer.  production selects the bcrypt cost factor
// (12 in production, 10 in development).
func New(control *sqlx.DB, production bool) *Initializer {
	return &Initializer{control: control, production: production}
}

func (i *Initializer) bcryptCost() int {
	if i.production {
		return 12
	}
	return 10
}

// Run executes the full initialization contract against one migrated
// tenant handle: default users (collected per-user), then best-effort
// system parameters, business defaults, and the seeds bookkeeping row.
func (i *Initializer) Run(ctx context.Context, db *sqlx.DB, rec *tenant.Record) (*Report, error) {
	report := i.DefaultUsers(ctx, db, rec)

	i.SystemParameters(ctx, db, rec.Code)
	i.BusinessDefaults(ctx, db)
	i.markSeeded(ctx, db)

	zap.S().Infow("tenant seeded",
		"tenant", rec.Code,
		"users_created", len(report.Users),
		"user_failures", len(report.Errors),
	)
	return report, nil
}

// DefaultUsers creates the fixed account templates, check-then-create by
// the email derived from the tenant code.  Existing emails are skipped, so
// a second run creates nothing.
func (i *Initializer) DefaultUsers(ctx context.Context, db *sqlx.DB, rec *tenant.Record) *Report {
	report := &Report{}
	key := tenant.PoolKey(rec.Code)

	for _, tpl := range defaultUsers {
		email := tpl.email(key)

		var existing uuid.UUID
		err := db.GetContext(ctx, &existing, `SELECT id FROM users WHERE email = $1`, email)
		if err == nil {
			zap.S().Infow("default user exists, skipped", "tenant", key, "email", email)
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			report.Errors = append(report.Errors, fmt.Errorf("lookup %s: %w", email, err))
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(tpl.password), i.bcryptCost())
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("hash password for %s: %w", email, err))
			continue
		}

		var userID uuid.UUID
		err = db.GetContext(ctx, &userID, `
			INSERT INTO users (nom, prenom, email, password, role, actif)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			RETURNING id`,
			tpl.Nom, tpl.Prenom, email, string(hash), tpl.role)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("create %s: %w", email, err))
			continue
		}

		if err := i.linkToSociete(ctx, userID, rec, tpl.role); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("link %s: %w", email, err))
			continue
		}

		// Settings and notification defaults are per-user niceties; their
		// failure does not undo the account.
		i.userSettings(ctx, db, userID)
		i.notificationSettings(ctx, db, userID)

		report.Users = append(report.Users, CreatedUser{ID: userID, Email: email, Role: tpl.role})
		zap.S().Infow("default user created", "tenant", key, "email", email, "role", tpl.role)
	}
	return report
}

// linkToSociete writes the control-plane membership row for a seeded user.
func (i *Initializer) linkToSociete(ctx context.Context, userID uuid.UUID, rec *tenant.Record, role string) error {
	_, err := i.control.ExecContext(ctx, `
		INSERT INTO societe_users (id, societe_id, user_id, role, actif, is_default)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (societe_id, user_id) DO NOTHING`,
		uuid.New(), rec.ID, userID, role, role == RoleAdmin)
	return err
}

func (i *Initializer) userSettings(ctx context.Context, db *sqlx.DB, userID uuid.UUID) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, preferences)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, defaultPreferencesJSON)
	if err != nil {
		zap.S().Warnw("default user settings", "user", userID, "err", err)
	}
}

func (i *Initializer) notificationSettings(ctx context.Context, db *sqlx.DB, userID uuid.UUID) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_settings
		       (user_id, enable_sound, enable_toast, enable_browser, enable_email, categories, priorities)
		VALUES ($1, TRUE, TRUE, TRUE, FALSE, $2::jsonb, $3::jsonb)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, defaultNotificationCategoriesJSON, defaultNotificationPrioritiesJSON)
	if err != nil {
		zap.S().Warnw("default notification settings", "user", userID, "err", err)
	}
}

// SystemParameters inserts the baseline system parameters.  Best-effort:
// an absent table means this tenant schema predates the parameters module,
// and the step is skipped without raising.
func (i *Initializer) SystemParameters(ctx context.Context, db *sqlx.DB, code string) {
	ok, err := tableExists(ctx, db, "system_parameters")
	if err != nil || !ok {
		if err != nil {
			zap.S().Warnw("system parameters table check", "tenant", code, "err", err)
		}
		return
	}

	params := []struct{ key, value, description, category string }{
		{"company_name", "Société " + code, "Nom de la société", "general"},
		{"currency", "EUR", "Devise par défaut", "financial"},
		{"vat_rate", "20.0", "Taux de TVA par défaut", "financial"},
		{"decimal_precision", "2", "Précision décimale", "general"},
		{"auto_numbering", "true", "Numérotation automatique", "general"},
		{"backup_enabled", "true", "Sauvegardes activées", "system"},
		{"audit_enabled", "true", "Audit activé", "system"},
	}
	for _, p := range params {
		_, err := db.ExecContext(ctx, `
			INSERT INTO system_parameters (key, value, description, category)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO NOTHING`,
			p.key, p.value, p.description, p.category)
		if err != nil {
			zap.S().Warnw("seed system parameter", "key", p.key, "err", err)
		}
	}
}

// BusinessDefaults inserts the baseline material categories.  Same
// best-effort, insert-if-absent contract as SystemParameters.
func (i *Initializer) BusinessDefaults(ctx context.Context, db *sqlx.DB) {
	ok, err := tableExists(ctx, db, "material_categories")
	if err != nil || !ok {
		if err != nil {
			zap.S().Warnw("material categories table check", "err", err)
		}
		return
	}

	categories := []string{
		"Acier", "Aluminium", "Inox", "Cuivre", "Laiton", "Consommables", "Outillage",
	}
	for _, name := range categories {
		_, err := db.ExecContext(ctx, `
			INSERT INTO material_categories (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING`,
			name, "Catégorie "+name)
		if err != nil {
			zap.S().Warnw("seed material category", "category", name, "err", err)
		}
	}
}

// markSeeded records completion in the seeds bookkeeping table.
func (i *Initializer) markSeeded(ctx context.Context, db *sqlx.DB) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO seeds_status (name) VALUES ('initial_seed')
		ON CONFLICT (name) DO UPDATE SET executed_at = now()`)
	if err != nil {
		zap.S().Warnw("mark seeds complete", "err", err)
	}
}

func tableExists(ctx context.Context, db *sqlx.DB, name string) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1`, name)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
