// internal/config/model.go
//
// Typed configuration model for the ERP core.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                            – dotenv values,
//   • `conf/global.yaml`                         – primary static file,
//   • `TOPSTEEL_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so secrets stay out of
// flat files and git history while the rest of the tree remains plain.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Database section
//

// Database holds the connection parameters shared by the control-plane
// pool, every per-tenant pool, and the scoped administrative connection.
// Only the database *name* differs between them: the control plane uses
// `ControlDB`, the administrative connection uses `AdminDB` (the server's
// default database, where CREATE/DROP DATABASE are issued), and tenant
// names are derived from the tenant code.
type Database struct {
	Host      string `koanf:"host"       validate:"required"`
	Port      int    `koanf:"port"       validate:"required"`
	User      string `koanf:"user"       validate:"required"`
	Password  string `koanf:"password"   validate:"required"`
	ControlDB string `koanf:"control_db" validate:"required"`
	AdminDB   string `koanf:"admin_db"   validate:"required"`
	SSLMode   string `koanf:"ssl_mode"`
}

//
// Tenant pool section
//

// Pool tunes the per-tenant connection handles.  IdleTTL of zero disables
// the background idle evictor entirely.
type Pool struct {
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	IdleTTL      time.Duration `koanf:"idle_ttl"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or TOPSTEEL_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	Environment string   `koanf:"environment" validate:"required,oneof=development production"`
	HTTP        HTTP     `koanf:"http"`
	Database    Database `koanf:"database"`
	Pool        Pool     `koanf:"pool"`
	Paths       Paths    `koanf:"-"` // not loaded from config files
}

// Production reports whether the process runs with production hardening
// (bcrypt cost factor, stricter defaults).
func (c *Config) Production() bool { return c.Environment == "production" }
