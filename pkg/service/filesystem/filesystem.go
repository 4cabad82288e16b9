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

package filesystem

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Service provides an interface for the filesystem operations used by the
// heartbeat status writer, the config manager and the client applications.
// This allows for easier testing and separation of concerns
type Service interface {
	// EnsureDirectory creates a directory if it doesn't exist
	EnsureDirectory(ctx context.Context, path string) error

	// ReadFile reads a file's contents respecting the context
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to a file respecting the context, truncating any previous content
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error

	// OpenAppend opens (or creates) a file for appending
	OpenAppend(ctx context.Context, path string, perm os.FileMode) (io.WriteCloser, error)

	// FileExists checks if a file exists
	FileExists(ctx context.Context, path string) (bool, error)

	// Remove removes a file or an empty directory
	Remove(ctx context.Context, path string) error

	// Rename moves a file
	Rename(ctx context.Context, oldPath, newPath string) error

	// ReadDir reads a directory, returning all its directory entries
	ReadDir(ctx context.Context, path string) ([]os.DirEntry, error)
}

// DefaultService is the default implementation of Service backed by the os package
type DefaultService struct{}

// NewDefaultService creates a new DefaultService
func NewDefaultService() *DefaultService {
	return &DefaultService{}
}

// checkContext checks if the context is done before proceeding with an operation
func (s *DefaultService) checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// EnsureDirectory creates a directory if it doesn't exist
func (s *DefaultService) EnsureDirectory(ctx context.Context, path string) error {
	if err := s.checkContext(ctx); err != nil {
		return err
	}
	return os.MkdirAll(path, 0755)
}

// ReadFile reads a file's contents respecting the context
func (s *DefaultService) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := s.checkContext(ctx); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// WriteFile writes data to a file respecting the context
func (s *DefaultService) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	if err := s.checkContext(ctx); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// OpenAppend opens a file in append mode, creating it if necessary
func (s *DefaultService) OpenAppend(ctx context.Context, path string, perm os.FileMode) (io.WriteCloser, error) {
	if err := s.checkContext(ctx); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, perm)
}

// FileExists checks if a file exists
func (s *DefaultService) FileExists(ctx context.Context, path string) (bool, error) {
	if err := s.checkContext(ctx); err != nil {
		return false, err
	}

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check if file exists: %w", err)
	}
	return true, nil
}

// Remove removes a file or directory
func (s *DefaultService) Remove(ctx context.Context, path string) error {
	if err := s.checkContext(ctx); err != nil {
		return err
	}
	return os.Remove(path)
}

// Rename moves a file from oldPath to newPath
func (s *DefaultService) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := s.checkContext(ctx); err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

// ReadDir reads a directory, returning all its directory entries
func (s *DefaultService) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	if err := s.checkContext(ctx); err != nil {
		return nil, err
	}
	return os.ReadDir(path)
}
