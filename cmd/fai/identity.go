package main

import (
	"os"
	"path/filepath"

	"github.com/faiproject/fai/pkg/identity"
)

func identityPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fai", "identity.json"), nil
}

// loadOrCreateIdentity loads this node's persistent identity, generating
// and saving a new one on first run.
func loadOrCreateIdentity() (*identity.Identity, error) {
	path, err := identityPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return identity.LoadFromFile(path)
	}

	id, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	if err := id.SaveToFile(path); err != nil {
		return nil, err
	}
	return id, nil
}
