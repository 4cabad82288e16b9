// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/service/filesystem"
)

// ConfigManager is the interface for config management
type ConfigManager interface {
	// GetConfig loads and validates the configuration for clientType
	GetConfig(ctx context.Context, clientType string) (ClientConfig, error)
}

// FileConfigManager reads a client configuration from a YAML or JSON file
type FileConfigManager struct {
	configPath string
	fsService  filesystem.Service
	logger     *zap.SugaredLogger
}

// NewFileConfigManager creates a manager for the file at configPath
func NewFileConfigManager(configPath string) *FileConfigManager {
	return &FileConfigManager{
		configPath: configPath,
		fsService:  filesystem.NewDefaultService(),
		logger:     logger.For(logger.ComponentConfigManager),
	}
}

// WithFileSystemService allows setting a custom filesystem service
func (m *FileConfigManager) WithFileSystemService(fsService filesystem.Service) *FileConfigManager {
	m.fsService = fsService
	return m
}

// GetConfig reads the file fresh from disk every time
func (m *FileConfigManager) GetConfig(ctx context.Context, clientType string) (ClientConfig, error) {
	exists, err := m.fsService.FileExists(ctx, m.configPath)
	if err != nil {
		return ClientConfig{}, err
	}
	if !exists {
		return ClientConfig{}, fmt.Errorf("config file does not exist: %s", m.configPath)
	}

	data, err := m.fsService.ReadFile(ctx, m.configPath)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return ClientConfig{}, err
	}

	if err := cfg.Validate(clientType); err != nil {
		return ClientConfig{}, fmt.Errorf("invalid %s configuration in %s: %w", clientType, m.configPath, err)
	}

	m.logger.Debugf("Loaded %s configuration from %s", clientType, m.configPath)
	return cfg, nil
}

// Parse decodes a configuration document. JSON documents are accepted
// since they are valid YAML.
func Parse(data []byte) (ClientConfig, error) {
	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
