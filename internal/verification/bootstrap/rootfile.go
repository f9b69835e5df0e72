package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"attest/internal/identity"
)

// RootIdentityFile records which identity this node bootstrapped as its
// root. Its presence means bootstrap already completed.
type RootIdentityFile struct {
	Root     string            `json:"root"`
	Identity identity.Document `json:"identity"`
}

// ReadRootFile returns nil when no file exists at path.
func ReadRootFile(path string) (*RootIdentityFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read root identity file: %w", err)
	}
	var f RootIdentityFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse root identity file: %w", err)
	}
	if f.Root == "" {
		return nil, fmt.Errorf("root identity file %s has no root", path)
	}
	return &f, nil
}

// WriteRootFile writes f through a temporary file and a rename so a crash
// never leaves a partial file behind.
func WriteRootFile(path string, f RootIdentityFile) (err error) {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode root identity file: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".root-identity-*")
	if err != nil {
		return fmt.Errorf("create temp root identity file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write root identity file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync root identity file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close root identity file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod root identity file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install root identity file: %w", err)
	}
	return nil
}
