package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"folderscan/internal/logger"
)

// Supported OCR backends
const (
	OCRBackendVision     = "vision"
	OCRBackendDocumentAI = "documentai"
)

// Supported folder link registries
const (
	LinkStoreNone      = "none"
	LinkStoreMemory    = "memory"
	LinkStoreFirestore = "firestore"
	LinkStoreGCS       = "gcs"
)

type Config struct {
	// HTTP front end
	Port       string
	BaseURL    string
	SessionTTL time.Duration

	// OAuth2 handshake
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	// Google Cloud Configuration
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// OCR
	OCRBackend     string
	ExtractWorkers int

	// Pipeline
	RunTimeout       time.Duration
	ImageNamePattern string
	ImageOrderBy     string
	SheetHeader      string

	// Folder link registry
	LinkStore      string
	LinkCollection string
	LinkBucket     string
	LinkPrefix     string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

var defaults = map[string]interface{}{
	"port":                     "8080",
	"base_url":                 "",
	"session_ttl":              "1h",
	"google_client_id":         "",
	"google_client_secret":     "",
	"google_redirect_uri":      "http://localhost:8080/auth/callback",
	"google_cloud_project":     "",
	"google_cloud_location":    "us",
	"document_ai_processor_id": "",
	"ocr_backend":              OCRBackendVision,
	"extract_workers":          4,
	"run_timeout":              "10m",
	"image_name_pattern":       "",
	"image_order_by":           "name",
	"sheet_header":             "Extracted Text",
	"link_store":               LinkStoreNone,
	"link_collection":          "folderLinks",
	"link_bucket":              "",
	"link_prefix":              "folder-links/",
	"log_level":                "info",
	"log_format":               "console",
	"log_time_format":          "2006-01-02T15:04:05Z07:00",
	"log_output":               "stderr",
}

// Load reads configuration from the environment and, when configPath is not
// empty, from a YAML file. Environment variables win over the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		Port:                  v.GetString("port"),
		BaseURL:               v.GetString("base_url"),
		SessionTTL:            v.GetDuration("session_ttl"),
		GoogleClientID:        v.GetString("google_client_id"),
		GoogleClientSecret:    v.GetString("google_client_secret"),
		GoogleRedirectURI:     v.GetString("google_redirect_uri"),
		GoogleCloudProject:    v.GetString("google_cloud_project"),
		GoogleCloudLocation:   v.GetString("google_cloud_location"),
		DocumentAIProcessorID: v.GetString("document_ai_processor_id"),
		OCRBackend:            strings.ToLower(v.GetString("ocr_backend")),
		ExtractWorkers:        v.GetInt("extract_workers"),
		RunTimeout:            v.GetDuration("run_timeout"),
		ImageNamePattern:      v.GetString("image_name_pattern"),
		ImageOrderBy:          v.GetString("image_order_by"),
		SheetHeader:           v.GetString("sheet_header"),
		LinkStore:             strings.ToLower(v.GetString("link_store")),
		LinkCollection:        v.GetString("link_collection"),
		LinkBucket:            v.GetString("link_bucket"),
		LinkPrefix:            v.GetString("link_prefix"),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
		LogTimeFormat:         v.GetString("log_time_format"),
		LogOutput:             v.GetString("log_output"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCRBackend {
	case OCRBackendVision:
	case OCRBackendDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai backend")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai backend")
		}
	default:
		return fmt.Errorf("OCR_BACKEND must be %q or %q, got %q", OCRBackendVision, OCRBackendDocumentAI, c.OCRBackend)
	}

	if c.ExtractWorkers < 1 {
		return fmt.Errorf("EXTRACT_WORKERS must be at least 1")
	}

	switch c.LinkStore {
	case LinkStoreNone, LinkStoreMemory:
	case LinkStoreFirestore:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the firestore link store")
		}
	case LinkStoreGCS:
		if c.LinkBucket == "" {
			return fmt.Errorf("LINK_BUCKET is required for the gcs link store")
		}
	default:
		return fmt.Errorf("LINK_STORE must be one of none, memory, firestore, gcs, got %q", c.LinkStore)
	}

	return nil
}

// ValidateServer checks the settings only the web front end needs.
func (c *Config) ValidateServer() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	if c.GoogleRedirectURI == "" {
		return fmt.Errorf("GOOGLE_REDIRECT_URI is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
