package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	apiURLVar  = "FITSESSION_API_URL"
	timeoutVar = "FITSESSION_TIMEOUT_SECONDS"
	appNameVar = "APP_NAME"
)

type EnvVars struct{}

var _ Config = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "FitSession")
}

func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiURLVar, "https://api.fitsession.app")
}

func (EnvVars) GetRequestTimeout() time.Duration {
	seconds, err := strconv.Atoi(GetEnv(timeoutVar, "30"))
	if err != nil || seconds <= 0 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (EnvVars) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

func (EnvVars) GetGoogleRedirectURL() string {
	return GetEnv("GOOGLE_REDIRECT_URL", "http://localhost:8765/callback")
}

// GetCredentialFile defaults to an encrypted file under the user config dir.
func (EnvVars) GetCredentialFile() string {
	if path := os.Getenv("FITSESSION_CREDENTIAL_FILE"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "fitsession", "credentials")
}

func (EnvVars) GetCredentialPassphrase() string {
	return GetEnv("FITSESSION_PASSPHRASE", "")
}

func (EnvVars) GetRedisAddr() string {
	return GetEnv("FITSESSION_REDIS_ADDR", "")
}

func (EnvVars) GetRedisPassword() string {
	return GetEnv("FITSESSION_REDIS_PASSWORD", "")
}

func (EnvVars) GetRedisDB() int {
	db, err := strconv.Atoi(GetEnv("FITSESSION_REDIS_DB", "0"))
	if err != nil {
		return 0
	}
	return db
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
