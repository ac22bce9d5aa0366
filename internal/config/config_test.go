// Package config provides configuration management for scopeintel.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)

	// Save and override HOME
	s.origHomeDir = os.Getenv("HOME")
	os.Setenv("HOME", s.tempDir)
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
	os.RemoveAll(s.tempDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultAddr, cfg.Addr)
	s.Equal(DefaultEmbedModel, cfg.EmbedModel)
	s.Equal(DefaultChatModel, cfg.ChatModel)
	s.Equal(DefaultPeriodDays, cfg.PeriodDays)
	s.Equal(4, cfg.MaxConns)
	s.False(cfg.Debug)
}

func (s *ConfigSuite) TestDataDir() {
	s.Contains(DataDir(), ".scopeintel")
}

func (s *ConfigSuite) TestDBPath() {
	s.Contains(DBPath(), "scopeintel.db")
}

func (s *ConfigSuite) TestEnsureDataDir() {
	s.NoError(EnsureDataDir())

	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())
}

func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name           string
		configYAML     string
		expectedAddr   string
		expectedModel  string
		expectedPeriod int
	}{
		{
			name:           "no config file",
			configYAML:     "",
			expectedAddr:   DefaultAddr,
			expectedModel:  DefaultEmbedModel,
			expectedPeriod: DefaultPeriodDays,
		},
		{
			name:           "custom addr",
			configYAML:     "addr: :9000\n",
			expectedAddr:   ":9000",
			expectedModel:  DefaultEmbedModel,
			expectedPeriod: DefaultPeriodDays,
		},
		{
			name:           "custom model and period",
			configYAML:     "embed_model: text-embedding-3-large\nperiod_days: 30\n",
			expectedAddr:   DefaultAddr,
			expectedModel:  "text-embedding-3-large",
			expectedPeriod: 30,
		},
		{
			name:           "invalid YAML returns defaults",
			configYAML:     "::: not yaml :::",
			expectedAddr:   DefaultAddr,
			expectedModel:  DefaultEmbedModel,
			expectedPeriod: DefaultPeriodDays,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			tempDir, err := os.MkdirTemp("", "config-test-*")
			s.Require().NoError(err)
			defer os.RemoveAll(tempDir)

			os.Setenv("HOME", tempDir)
			s.Require().NoError(os.MkdirAll(filepath.Join(tempDir, ".scopeintel"), 0o750))

			if tt.configYAML != "" {
				writeErr := os.WriteFile(
					filepath.Join(tempDir, ".scopeintel", "config.yaml"),
					[]byte(tt.configYAML),
					0o600,
				)
				s.Require().NoError(writeErr)
			}

			cfg, err := Load()
			s.NoError(err)
			s.NotNil(cfg)
			s.Equal(tt.expectedAddr, cfg.Addr)
			s.Equal(tt.expectedModel, cfg.EmbedModel)
			s.Equal(tt.expectedPeriod, cfg.PeriodDays)
		})
	}
}

func (s *ConfigSuite) TestLoadEnvOverrides() {
	os.Setenv("OPENAI_API_KEY", "sk-test")
	os.Setenv("SCOPEINTEL_ADDR", ":7700")
	defer func() {
		os.Unsetenv("OPENAI_API_KEY")
		os.Unsetenv("SCOPEINTEL_ADDR")
	}()

	cfg, err := Load()
	s.NoError(err)
	s.Equal("sk-test", cfg.OpenAIAPIKey)
	s.Equal(":7700", cfg.Addr)
}
