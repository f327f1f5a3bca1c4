package s3backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("S3_ARCHIVE_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")
	t.Setenv("S3_BUCKET_NAME", "imports")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_SECRET_ACCESS_KEY")

	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "imports", cfg.BucketName)
	assert.True(t, cfg.CreateBucket)

	t.Setenv("S3_ARCHIVE_ENABLED", "false")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())

	t.Setenv("APP_ENV", "prod")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.CreateBucket)

	var none *Config
	assert.False(t, none.IsEnabled())
}

func TestImportObjectKey(t *testing.T) {
	cfg := &Config{}
	at := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		file string
		want string
	}{
		{"plain", "leads.csv", "imports/2025/02/7-leads.csv"},
		{"spaces", "sales march.xlsx", "imports/2025/02/7-sales_march.xlsx"},
		{"windows path", `C:\Users\ops\leads.csv`, "imports/2025/02/7-leads.csv"},
		{"traversal", "../../etc/passwd", "imports/2025/02/7-passwd"},
		{"empty", "", "imports/2025/02/7-upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.ImportObjectKey(7, tt.file, at))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType("/tmp/import-3.CSV"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType("sales.xlsx"))
	assert.Equal(t, "application/octet-stream", ContentType("dump.bin"))
}
