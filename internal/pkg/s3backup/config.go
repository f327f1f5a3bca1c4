package s3backup

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

// Config describes the bucket uploaded import files are archived to. EndpointURL
// is only set for S3-compatible services.
type Config struct {
	Enabled         bool
	Region          string
	BucketName      string
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	// CreateBucket lets the client create a missing bucket. Off in production.
	CreateBucket bool
}

// LoadConfig reads S3_* variables. An enabled archive needs credentials and a
// bucket; everything is optional while it is disabled.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Enabled:         env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		CreateBucket:    env.GetEnv("APP_ENV", "dev") != "prod",
	}
	if !cfg.Enabled {
		return cfg, nil
	}

	var missing []string
	for name, v := range map[string]string{
		"S3_ACCESS_KEY_ID":     cfg.AccessKeyID,
		"S3_SECRET_ACCESS_KEY": cfg.SecretAccessKey,
		"S3_BUCKET_NAME":       cfg.BucketName,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("s3 archive enabled but %s not set", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled
}

// ImportObjectKey is imports/YYYY/MM/<batch id>-<base name>. Directories and
// spaces are stripped from the uploaded name.
func (c *Config) ImportObjectKey(batchID uint, fileName string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	switch name {
	case "", ".", "/", "..":
		name = "upload"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return fmt.Sprintf("imports/%04d/%02d/%d-%s", at.Year(), int(at.Month()), batchID, name)
}
