package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	ProfileListingPhotos = "listing_photos"
	ProfileAvatar        = "avatar"
)

type Config struct {
	Port             string
	StorageBackend   string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	AWSAccessKey     string
	AWSSecretKey     string
	PublicBaseURL    string
	MinioUseSSL      bool
	APIKey           string
	UploadConfigPath string
	Debug            bool
}

func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		StorageBackend:   getEnv("STORAGE_BACKEND", "s3"),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		AWSAccessKey:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", ""),
		MinioUseSSL:      getEnv("MINIO_USE_SSL", "true") == "true",
		APIKey:           getEnv("API_KEY", ""),
		UploadConfigPath: getEnv("UPLOAD_CONFIG_PATH", "upload-config.yaml"),
		Debug:            getEnv("DEBUG", "false") == "true",
	}
}

// Profile holds the upload limits for one kind of asset.
type Profile struct {
	MaxBatchCount     int      `yaml:"max_batch_count"`
	SizeMax           string   `yaml:"size_max"`
	AllowedMimes      []string `yaml:"allowed_mimes"`
	PathPrefix        string   `yaml:"path_prefix"`
	PresignTTLSeconds int64    `yaml:"presign_ttl_seconds"`
	PartSizeMB        int64    `yaml:"part_size_mb"`

	sizeMaxBytes int64
}

// SizeMaxBytes returns the parsed size ceiling. Zero means unlimited.
func (p *Profile) SizeMaxBytes() int64 {
	return p.sizeMaxBytes
}

// SizeMaxHuman renders the size ceiling in the same decimal units size_max is
// parsed in: "2MB" is 2,000,000 bytes and renders as "2MB".
func (p *Profile) SizeMaxHuman() string {
	if p.sizeMaxBytes <= 0 {
		return "unlimited"
	}
	return units.HumanSize(float64(p.sizeMaxBytes))
}

// AllowsMime reports whether mime matches one of the allowed entries.
// Entries ending in "/*" match the whole top-level type. An empty list allows everything.
func (p *Profile) AllowsMime(mime string) bool {
	if len(p.AllowedMimes) == 0 {
		return true
	}
	for _, allowed := range p.AllowedMimes {
		if allowed == mime {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}

func (p *Profile) normalize() error {
	if p.MaxBatchCount <= 0 {
		return errors.New("max_batch_count must be greater than 0")
	}
	if p.SizeMax != "" {
		size, err := units.FromHumanSize(p.SizeMax)
		if err != nil {
			return fmt.Errorf("invalid size_max %q: %w", p.SizeMax, err)
		}
		p.sizeMaxBytes = size
	}
	if p.PresignTTLSeconds <= 0 {
		p.PresignTTLSeconds = 900
	}
	if p.PartSizeMB <= 0 {
		p.PartSizeMB = 8
	}
	p.PathPrefix = strings.Trim(p.PathPrefix, "/")
	return nil
}

type UploadConfig struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadUploadConfig reads the profiles file. A missing file yields the built-in profiles.
func LoadUploadConfig(path string) (*UploadConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultUploadConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload config: %w", err)
	}
	return ParseUploadConfig(data)
}

func ParseUploadConfig(data []byte) (*UploadConfig, error) {
	var cfg UploadConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse upload config: %w", err)
	}

	for name, profile := range cfg.Profiles {
		if err := profile.normalize(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		cfg.Profiles[name] = profile
	}

	return &cfg, nil
}

func (uc *UploadConfig) GetProfile(name string) *Profile {
	if profile, exists := uc.Profiles[name]; exists {
		return &profile
	}

	// Return default if profile not found
	if defaultProfile, exists := uc.Profiles["default"]; exists {
		return &defaultProfile
	}

	// Fallback to hardcoded defaults
	if profile, exists := DefaultUploadConfig().Profiles[name]; exists {
		return &profile
	}
	return DefaultProfile()
}

func DefaultUploadConfig() *UploadConfig {
	photos := DefaultProfile()
	photos.PathPrefix = "listings"

	avatar := DefaultProfile()
	avatar.MaxBatchCount = 1
	avatar.PathPrefix = "avatars"

	return &UploadConfig{
		Profiles: map[string]Profile{
			ProfileListingPhotos: *photos,
			ProfileAvatar:        *avatar,
		},
	}
}

func DefaultProfile() *Profile {
	p := &Profile{
		MaxBatchCount: 6,
		SizeMax:       "2MB",
		AllowedMimes:  []string{"image/*"},
	}
	// the literal values above always normalize
	_ = p.normalize()
	return p
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
