// Package config loads service configuration from the environment (and an
// optional .env file) using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide, read-only configuration.
type Config struct {
	DevMode    bool
	AppName    string
	AppVersion string
	Port       int

	LogLevel  string
	LogFormat string

	// Secret parameter names, resolved through secret.Resolver.
	JWTSecretParam          string
	WatsonAPIKeyParam       string
	GoogleSpeechAPIKeyParam string
	APIGatewaySecretParam   string

	JWTAlgorithm string
	TokenTTL     time.Duration
	BcryptCost   int

	SpeechProvider       string
	SpeechTimeout        time.Duration
	WatsonURL            string
	WatsonIAMURL         string
	WatsonModel          string
	GoogleSpeechLanguage string

	AWSEndpointURL           string
	UsersTable               string
	TranscriptionsTable      string
	TranscriptionsOwnerIndex string
	KMSKeyID                 string

	MaxFileSize         int64
	AllowedAudioFormats []string
	NotesListLimit      int
	FrontendURL         string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("APP_NAME", "VozNota API")
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("PORT", 8080)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("JWT_SECRET_PARAM", "/voznota/jwt-secret")
	v.SetDefault("WATSON_STT_API_KEY_PARAM", "/voznota/watson-stt-api-key")
	v.SetDefault("GOOGLE_SPEECH_API_KEY_PARAM", "/voznota/google-speech-api-key")
	v.SetDefault("API_GATEWAY_SECRET_PARAM", "/voznota/api-gateway-secret")

	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", 30*24*60)
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("SPEECH_PROVIDER", "watson")
	v.SetDefault("SPEECH_TIMEOUT", "60s")
	v.SetDefault("WATSON_STT_URL", "")
	v.SetDefault("WATSON_IAM_URL", "https://iam.cloud.ibm.com/identity/token")
	v.SetDefault("WATSON_STT_MODEL", "es-ES_BroadbandModel")
	v.SetDefault("GOOGLE_SPEECH_LANGUAGE", "es-ES")

	v.SetDefault("AWS_ENDPOINT_URL", "")
	v.SetDefault("USERS_TABLE", "Users")
	v.SetDefault("TRANSCRIPTIONS_TABLE", "Transcriptions")
	v.SetDefault("TRANSCRIPTIONS_OWNER_INDEX", "user_id-index")
	v.SetDefault("KMS_KEY_ID", "alias/voznota-transcripts")

	v.SetDefault("MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("ALLOWED_AUDIO_FORMATS", "audio/wav,audio/mpeg,audio/mp3,audio/x-wav,application/octet-stream,audio/wave")
	v.SetDefault("NOTES_LIST_LIMIT", 100)
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
}

// Load reads configuration from the environment. If envFile exists it is
// loaded first; variables already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		DevMode:    v.GetBool("DEV_MODE"),
		AppName:    v.GetString("APP_NAME"),
		AppVersion: v.GetString("APP_VERSION"),
		Port:       v.GetInt("PORT"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		JWTSecretParam:          v.GetString("JWT_SECRET_PARAM"),
		WatsonAPIKeyParam:       v.GetString("WATSON_STT_API_KEY_PARAM"),
		GoogleSpeechAPIKeyParam: v.GetString("GOOGLE_SPEECH_API_KEY_PARAM"),
		APIGatewaySecretParam:   v.GetString("API_GATEWAY_SECRET_PARAM"),

		JWTAlgorithm: strings.ToUpper(v.GetString("JWT_ALGORITHM")),
		TokenTTL:     time.Duration(v.GetInt("JWT_ACCESS_TOKEN_EXPIRE_MINUTES")) * time.Minute,
		BcryptCost:   v.GetInt("BCRYPT_COST"),

		SpeechProvider:       strings.ToLower(v.GetString("SPEECH_PROVIDER")),
		SpeechTimeout:        v.GetDuration("SPEECH_TIMEOUT"),
		WatsonURL:            strings.TrimRight(v.GetString("WATSON_STT_URL"), "/"),
		WatsonIAMURL:         v.GetString("WATSON_IAM_URL"),
		WatsonModel:          v.GetString("WATSON_STT_MODEL"),
		GoogleSpeechLanguage: v.GetString("GOOGLE_SPEECH_LANGUAGE"),

		AWSEndpointURL:           v.GetString("AWS_ENDPOINT_URL"),
		UsersTable:               v.GetString("USERS_TABLE"),
		TranscriptionsTable:      v.GetString("TRANSCRIPTIONS_TABLE"),
		TranscriptionsOwnerIndex: v.GetString("TRANSCRIPTIONS_OWNER_INDEX"),
		KMSKeyID:                 v.GetString("KMS_KEY_ID"),

		MaxFileSize:         v.GetInt64("MAX_FILE_SIZE"),
		AllowedAudioFormats: splitList(v.GetString("ALLOWED_AUDIO_FORMATS")),
		NotesListLimit:      v.GetInt("NOTES_LIST_LIMIT"),
		FrontendURL:         v.GetString("FRONTEND_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM must be HS256, HS384 or HS512 (got %q)", c.JWTAlgorithm)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31 (got %d)", c.BcryptCost)
	}
	switch c.SpeechProvider {
	case "watson":
		if c.WatsonURL == "" && !c.DevMode {
			return fmt.Errorf("WATSON_STT_URL is required")
		}
	case "google":
	default:
		return fmt.Errorf("SPEECH_PROVIDER must be watson or google (got %q)", c.SpeechProvider)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.NotesListLimit <= 0 {
		return fmt.Errorf("NOTES_LIST_LIMIT must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
