package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/autoclass/attendd/internal/model"
	"github.com/autoclass/attendd/internal/registry"
)

// The credential file holds only student numbers and passwords; session
// tokens are never persisted.

type accountEntry struct {
	StudentNumber string `json:"student_number"`
	Password      string `json:"password"`
}

type accountsFile struct {
	Accounts []accountEntry `json:"accounts"`
}

// AccountStore loads and saves the credential file.
type AccountStore struct {
	path string
}

// NewAccountStore creates a store for the given file path.
func NewAccountStore(path string) *AccountStore {
	return &AccountStore{path: path}
}

// Load reads the credential file into the registry, replacing nothing on a
// missing file (first run). Returns the number of accounts loaded.
func (s *AccountStore) Load(reg *registry.Registry) (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse accounts file: %w", err)
	}

	loaded := 0
	for _, entry := range file.Accounts {
		if err := reg.Add(model.NewAccount(entry.StudentNumber, entry.Password)); err != nil {
			return loaded, fmt.Errorf("register account: %w", err)
		}
		loaded++
	}
	return loaded, nil
}

// Save writes every registered account's credentials back to the file,
// pretty-printed.
func (s *AccountStore) Save(reg *registry.Registry) error {
	accounts := reg.Snapshot()
	file := accountsFile{Accounts: make([]accountEntry, 0, len(accounts))}
	for _, acct := range accounts {
		file.Accounts = append(file.Accounts, accountEntry{
			StudentNumber: acct.StudentNumber,
			Password:      acct.Password,
		})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	return nil
}
