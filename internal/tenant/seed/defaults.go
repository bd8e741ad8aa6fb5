// defaults.go holds the JSON payloads written into per-user settings and
// notification rows.  The shapes mirror what the web client expects; keep
// both sides in sync when adding keys.
package seed

const defaultPreferencesJSON = `{
  "language": "fr",
  "timezone": "Europe/Paris",
  "theme": "light",
  "appearance": {
    "theme": "light",
    "language": "fr",
    "fontSize": "medium",
    "density": "comfortable",
    "accentColor": "blue"
  },
  "notifications": {
    "email": true,
    "push": true,
    "sms": false
  }
}`

const defaultNotificationCategoriesJSON = `{
  "system": true,
  "stock": true,
  "projet": true,
  "production": true,
  "maintenance": true,
  "qualite": true,
  "facturation": true,
  "sauvegarde": false,
  "utilisateur": true
}`

const defaultNotificationPrioritiesJSON = `{
  "low": false,
  "normal": true,
  "high": true,
  "urgent": true
}`
