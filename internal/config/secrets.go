package config

import (
	"net/url"
	"os"
	"strings"
)

// SecretSource represents where a secret comes from.
type SecretSource string

const (
	SecretSourceEnv    SecretSource = "env"
	SecretSourceConfig SecretSource = "config"
	SecretSourceNone   SecretSource = "none"
)

// SecretStatus represents the status of a configured secret.
type SecretStatus struct {
	Name   string       `json:"name"`
	Source SecretSource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "postgres://app:***@db:5432/sales"
}

// SecretPostgresDSN names the database connection string in CheckSecrets.
const SecretPostgresDSN = "Postgres DSN"

// CheckSecrets returns the status of every secret the application reads.
func CheckSecrets(cfg *Config) []SecretStatus {
	return []SecretStatus{
		checkSecret(SecretPostgresDSN, cfg.Storage.PostgresDSN, maskDSN,
			"RETAILCAST_STORAGE_POSTGRES_DSN", "DATABASE_URL"),
	}
}

// checkSecret checks if a secret is set and where it came from.
func checkSecret(name, value string, mask func(string) string, envVars ...string) SecretStatus {
	status := SecretStatus{
		Name:   name,
		IsSet:  value != "",
		Source: SecretSourceNone,
	}
	if value == "" {
		return status
	}

	status.Source = SecretSourceConfig
	for _, env := range envVars {
		if os.Getenv(env) == value {
			status.Source = SecretSourceEnv
			break
		}
	}
	status.Masked = mask(value)
	return status
}

// maskDSN hides the password of a connection string. URL-style DSNs keep
// user, host and database; key=value DSNs have their password value replaced.
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxx")
			return strings.Replace(u.String(), ":xxx@", ":***@", 1)
		}
		return u.String()
	}

	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
