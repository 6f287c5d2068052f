// Package devicestore persists the local identity and the name-to-public-key
// map of paired peers as two hex-encoded JSON files on disk.
package devicestore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/uclip/receiverd/internal/identity"
)

const (
	identityFileName = "identity.json"
	devicesFileName  = "paired_devices.json"
	dirPerm          = 0o700
	filePerm         = 0o600
)

type storedIdentity struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

type pairedDevices struct {
	Devices map[string]string `json:"devices"`
}

// Store is a directory-backed DeviceStore. All operations are safe for
// concurrent use; each durable write replaces the file atomically via a
// temp-file-then-rename so a crash mid-write never leaves a torn file.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

// Open ensures baseDir exists and returns a Store rooted there.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, dirPerm); err != nil {
		return nil, fmt.Errorf("devicestore: create %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) identityPath() string {
	return filepath.Join(s.baseDir, identityFileName)
}

func (s *Store) devicesPath() string {
	return filepath.Join(s.baseDir, devicesFileName)
}

// LoadIdentity returns (nil, nil) if no identity has been persisted yet.
// Any I/O or parse error is returned as-is; callers treat this as fatal at
// daemon startup.
func (s *Store) LoadIdentity() (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.identityPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("devicestore: read identity: %w", err)
	}

	var stored storedIdentity
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("devicestore: parse identity: %w", err)
	}

	id, err := identity.FromHex(stored.PrivateKey, stored.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("devicestore: decode identity: %w", err)
	}
	return id, nil
}

// SaveIdentity overwrites identity.json.
func (s *Store) SaveIdentity(id *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := storedIdentity{
		PrivateKey: id.PrivateKeyHex(),
		PublicKey:  id.PublicKeyHex(),
	}
	return writeJSONAtomic(s.identityPath(), stored)
}

func (s *Store) loadDevicesLocked() (pairedDevices, error) {
	data, err := os.ReadFile(s.devicesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return pairedDevices{Devices: map[string]string{}}, nil
		}
		return pairedDevices{}, fmt.Errorf("devicestore: read paired devices: %w", err)
	}

	var devices pairedDevices
	if err := json.Unmarshal(data, &devices); err != nil {
		return pairedDevices{}, fmt.Errorf("devicestore: parse paired devices: %w", err)
	}
	if devices.Devices == nil {
		devices.Devices = map[string]string{}
	}
	return devices, nil
}

// SavePairedDevice upserts name -> keyBytes, overwriting any prior key
// stored under that name.
func (s *Store) SavePairedDevice(name string, keyBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.loadDevicesLocked()
	if err != nil {
		return err
	}
	devices.Devices[name] = hex.EncodeToString(keyBytes)
	return writeJSONAtomic(s.devicesPath(), devices)
}

// FindDeviceByKey returns the symbolic name bound to keyBytes, or ("", false)
// if no paired device carries that key. Iteration order is unspecified.
func (s *Store) FindDeviceByKey(keyBytes []byte) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices, err := s.loadDevicesLocked()
	if err != nil {
		return "", false, err
	}
	target := hex.EncodeToString(keyBytes)
	for name, key := range devices.Devices {
		if key == target {
			return name, true, nil
		}
	}
	return "", false, nil
}

// PairedDevice is one entry as returned by List.
type PairedDevice struct {
	Name      string
	PublicKey string // hex
}

// List returns all paired devices; insertion order is not preserved.
func (s *Store) List() ([]PairedDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices, err := s.loadDevicesLocked()
	if err != nil {
		return nil, err
	}
	out := make([]PairedDevice, 0, len(devices.Devices))
	for name, key := range devices.Devices {
		out = append(out, PairedDevice{Name: name, PublicKey: key})
	}
	return out, nil
}

// Remove deletes the mapping for name, returning true iff one was removed.
func (s *Store) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.loadDevicesLocked()
	if err != nil {
		return false, err
	}
	if _, ok := devices.Devices[name]; !ok {
		return false, nil
	}
	delete(devices.Devices, name)
	if err := writeJSONAtomic(s.devicesPath(), devices); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("devicestore: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("devicestore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("devicestore: rename %s: %w", tmp, err)
	}
	return nil
}
