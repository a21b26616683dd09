package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		yaml        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no file and no env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
				assert.True(t, cfg.Security.RateLimit.Enabled)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "both", cfg.Logging.Output)

				a := cfg.Analytics
				assert.Equal(t, 30.0, a.HistoryWindowDays)
				assert.Equal(t, 0.60, a.DetectionGroupRatio)
				assert.Equal(t, 6, a.DetectionMinScore)
				assert.Equal(t, 0.10, a.PromoSpendRate)
				assert.Equal(t, 2.0, a.FulfillmentCostPerUnit)
				assert.Equal(t, 30.0, a.BrandErosionDiscountPct)
				assert.Equal(t, 10.0, a.DefaultReorderPoint)
				assert.Equal(t, 1.5, a.DefaultElasticity)
			},
		},
		{
			name: "yaml overlays defaults",
			yaml: `
server:
  port: 9090
analytics:
  history_window_days: 28
  elasticities:
    Toys: 2.2
  column_aliases:
    quantity: [pieces]
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
				assert.Equal(t, 28.0, cfg.Analytics.HistoryWindowDays)
				assert.Equal(t, 0.60, cfg.Analytics.DetectionGroupRatio)
				assert.Equal(t, map[string]float64{"Toys": 2.2}, cfg.Analytics.Elasticities)
				assert.Equal(t, map[string][]string{"quantity": {"pieces"}}, cfg.Analytics.ColumnAliases)
			},
		},
		{
			name: "env wins over yaml",
			yaml: "server:\n  port: 9090\n",
			env: map[string]string{
				"RETAIL_SERVER_PORT":                   "7070",
				"RETAIL_LOGGING_LEVEL":                 "debug",
				"RETAIL_SECURITY_ALLOWED_ORIGINS":      "http://a.test,http://b.test",
				"RETAIL_ANALYTICS_ELASTICITIES":        "Garden:1.3",
				"RETAIL_ANALYTICS_DETECTION_MIN_SCORE": "7",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.AllowedOrigins)
				assert.Equal(t, 1.3, cfg.Analytics.Elasticities["Garden"])
				assert.Equal(t, 7, cfg.Analytics.DetectionMinScore)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"RETAIL_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid detection ratio",
			yaml:    "analytics:\n  detection_group_ratio: 1.5\n",
			wantErr: true,
		},
		{
			name:    "negative elasticity",
			yaml:    "analytics:\n  elasticities:\n    Toys: -1\n",
			wantErr: true,
		},
		{
			name:    "invalid log level",
			env:     map[string]string{"RETAIL_LOGGING_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeYAML(t, tt.yaml)
			}

			cfg, err := LoadFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoad_UsesConfigFileEnv(t *testing.T) {
	t.Setenv("RETAIL_CONFIG_FILE", writeYAML(t, "server:\n  port: 8181\n"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestValidate_NormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "stdout"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(t.TempDir(), "elsewhere")

	p, err := PathsConfig{BaseDir: base, ReportsDir: abs}.ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, DefaultDataDir), p.DataDir)
	assert.Equal(t, abs, p.ReportsDir)
	assert.Equal(t, filepath.Join(base, DefaultLogsDir), p.LogsDir)
	assert.Equal(t, filepath.Join(abs, "kpis.csv"), p.GetReportPath("kpis.csv"))

	require.NoError(t, p.EnsureDirectories())
	assert.True(t, FileExists(p.DataDir))
	assert.True(t, FileExists(p.ReportsDir))
	assert.True(t, FileExists(p.LogsDir))
}

func TestResolvePaths_ExecutableDir(t *testing.T) {
	p, err := PathsConfig{}.ResolvePaths()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p.BaseDir))
	assert.Equal(t, filepath.Join(p.LogsDir, "app.log"), p.GetLogPath("app.log"))
}
