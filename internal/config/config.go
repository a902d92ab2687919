package config

import "time"

// Config aggregates the client's configuration surfaces.
type Config interface {
	EnvConfig
	GoogleConfig
	StoreConfig
}

// EnvConfig covers the API connection and general environment.
type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetEnv() string
}

// GoogleConfig covers the Google sign-in client registration.
type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleRedirectURL() string
}

// StoreConfig covers the credential store backend.
type StoreConfig interface {
	GetCredentialFile() string
	GetCredentialPassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
