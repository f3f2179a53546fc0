package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `fundingflow:
  name: "TestApp"
  version: "1.0"
fetcher:
  timeout: 2s
exchanges:
  bitget:
    enabled: true
    base_url: "http://127.0.0.1:9000"
    requests_per_second: 0
`

// writeTempConfig stores content in a temporary file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "TestApp", cfg.Fundingflow.Name)
	assert.Equal(t, 2*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Exchanges.Bitget.BaseURL)
	// untouched blocks keep their defaults
	assert.Equal(t, "https://fapi.binance.com", cfg.Exchanges.Binance.BaseURL)
	assert.Equal(t, DefaultTopN, cfg.Exchanges.Bitget.TopN)
	assert.Equal(t, DefaultTopN, cfg.Exchanges.Mexc.TopN)
}

func TestLoadConfigRejectsLongTimeout(t *testing.T) {
	content := strings.Replace(minimalConfig, "timeout: 2s", "timeout: 30s", 1)
	_, err := LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher.timeout")
}

func TestLoadConfigRejectsLargeTopN(t *testing.T) {
	content := minimalConfig + "    top_n: 50\n"
	_, err := LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchanges.bitget.top_n")

	// disabled blocks are checked too
	content = minimalConfig + "  mexc:\n    top_n: 500\n"
	_, err = LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchanges.mexc.top_n")

	content = minimalConfig + "    top_n: 5\n"
	cfg, err := LoadConfig(writeTempConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Exchanges.Bitget.TopN)
}

func TestLoadConfigRequiresName(t *testing.T) {
	content := strings.Replace(minimalConfig, `name: "TestApp"`, `name: ""`, 1)
	_, err := LoadConfig(writeTempConfig(t, content))
	assert.Error(t, err)
}

func TestLoadConfigInvalidBaseURL(t *testing.T) {
	content := strings.Replace(minimalConfig, "http://127.0.0.1:9000", "ftp://example.com", 1)
	_, err := LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchanges.bitget.base_url")
}

func TestLoadConfigInvalidSchedule(t *testing.T) {
	content := minimalConfig + "refresh:\n  enabled: true\n  schedule: \"not a schedule\"\n"
	_, err := LoadConfig(writeTempConfig(t, content))
	assert.Error(t, err)
}

func TestCloudWatchEnvOverrides(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	content := minimalConfig + "metrics:\n  cloudwatch:\n    enabled: true\n"
	cfg, err := LoadConfig(writeTempConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Metrics.CloudWatch.Region)
	assert.Equal(t, "key", cfg.Metrics.CloudWatch.AccessKeyID)
	assert.Equal(t, "secret", cfg.Metrics.CloudWatch.SecretAccessKey)
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"":         EnvironmentDevelopment,
		"prod":     EnvironmentProduction,
		"stagging": EnvironmentStaging,
		" QA ":     "qa",
	}
	for in, want := range cases {
		t.Setenv(appEnvVar, in)
		assert.Equal(t, want, AppEnvironment(), "APP_ENV=%q", in)
	}
	assert.True(t, IsProductionLike(EnvironmentStaging))
	assert.False(t, IsProductionLike(EnvironmentDevelopment))
}

func TestResolvePathKeepsExplicitPath(t *testing.T) {
	t.Setenv(appEnvVar, "production")
	assert.Equal(t, "/etc/fundingflow.yml", ResolvePath("/etc/fundingflow.yml"))
	assert.Equal(t, DefaultPath, ResolvePath(""), "no env file exists next to the default")
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig("config.yml")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Server.Address)
}

func TestLoadConfigS3RequiresBucketAndRefresh(t *testing.T) {
	content := minimalConfig + `storage:
  s3:
    enabled: true
`
	_, err := LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	content = minimalConfig + `storage:
  s3:
    enabled: true
    bucket: "archive"
`
	_, err = LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh")

	content = minimalConfig + `refresh:
  enabled: true
storage:
  s3:
    enabled: true
    bucket: "archive"
    compression: "zstd"
`
	_, err = LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compression")
}

func TestLoadConfigS3Defaults(t *testing.T) {
	t.Setenv("S3_BUCKET", "from-env")
	content := minimalConfig + `refresh:
  enabled: true
storage:
  s3:
    enabled: true
    bucket: "archive"
`
	cfg, err := LoadConfig(writeTempConfig(t, content))
	require.NoError(t, err)

	s3 := cfg.Storage.S3
	assert.Equal(t, "from-env", s3.Bucket)
	assert.Equal(t, "funding_rates", s3.Prefix)
	assert.Equal(t, "snappy", s3.Compression)
	assert.Equal(t, 2, s3.Workers)
}
