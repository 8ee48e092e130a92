package wallet

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// sessionFilePath returns the per-user cache of unlocked keys.
//
//	macOS:   ~/Library/Caches/w3carbon/session.json
//	Linux:   ~/.cache/w3carbon/session.json
//	Windows: %LocalAppData%\w3carbon\session.json
func sessionFilePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, keychainService, "session.json")
}

// loadSessionKeys returns the key map, never nil.
func loadSessionKeys() map[string]string {
	data, err := os.ReadFile(sessionFilePath())
	if err != nil {
		return make(map[string]string)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return make(map[string]string)
	}
	return m
}

func saveSessionKeys(m map[string]string) error {
	path := sessionFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}
	_ = os.Chmod(path, 0600)
	return nil
}

// GetSessionKey returns a cached key for ref, or ("", false) if not cached.
func GetSessionKey(ref string) (string, bool) {
	v, ok := loadSessionKeys()[ref]
	return v, ok
}

// IsUnlocked reports whether a wallet name has a cached key.
func IsUnlocked(name string) bool {
	_, ok := GetSessionKey(keyRef(name))
	return ok
}

// PutSessionKey caches a key for ref.
func PutSessionKey(ref, hexKey string) error {
	m := loadSessionKeys()
	m[ref] = normaliseHexKey(hexKey)
	return saveSessionKeys(m)
}

// RemoveSessionKey evicts one wallet's key.
func RemoveSessionKey(ref string) {
	m := loadSessionKeys()
	if _, ok := m[ref]; !ok {
		return
	}
	delete(m, ref)
	_ = saveSessionKeys(m)
}

// ClearSession removes all cached keys.
func ClearSession() error {
	err := os.Remove(sessionFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SessionActive reports whether any key is cached.
func SessionActive() bool {
	return len(loadSessionKeys()) > 0
}
