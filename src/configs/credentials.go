package configs

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvAPIKey      = "API_KEY"
	EnvProjectID   = "PROJECT_ID"
	EnvIAMEndpoint = "IAM_IBM_CLOUD_URL"
	EnvDatabaseURL = "DATABASE_URL"
)

// Credentials watsonx account settings, immutable after startup
type Credentials struct {
	APIKey           string
	ProjectID        string
	IdentityEndpoint string // host of the IAM service, e.g. iam.cloud.ibm.com
}

// ConfigError a required setting is missing or invalid
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// LoadCredentials reads the credentials from the environment. Every missing
// variable is reported in a single error.
func LoadCredentials() (Credentials, error) {
	return credentialsFrom(os.Getenv)
}

func credentialsFrom(getenv func(string) string) (Credentials, error) {
	creds := Credentials{
		APIKey:           strings.TrimSpace(getenv(EnvAPIKey)),
		ProjectID:        strings.TrimSpace(getenv(EnvProjectID)),
		IdentityEndpoint: strings.TrimSpace(getenv(EnvIAMEndpoint)),
	}

	var missing []string
	if creds.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if creds.ProjectID == "" {
		missing = append(missing, EnvProjectID)
	}
	if creds.IdentityEndpoint == "" {
		missing = append(missing, EnvIAMEndpoint)
	}
	if len(missing) > 0 {
		return Credentials{}, &ConfigError{
			Field:  strings.Join(missing, ", "),
			Reason: "missing in environment or .env file",
		}
	}
	return creds, nil
}

// DatabaseURL prefers DATABASE_URL over database.url.
func (c *Config) DatabaseURL() string {
	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" {
		return dsn
	}
	return c.Database.URL
}
