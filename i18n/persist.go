package i18n

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// FilePersister stores the language preference as a small JSON file.
type FilePersister struct {
	Path string
}

type preference struct {
	Language string `json:"language"`
}

func (p FilePersister) Load() (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var pref preference
	if err := json.Unmarshal(data, &pref); err != nil {
		return "", err
	}
	return pref.Language, nil
}

func (p FilePersister) Save(code string) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(preference{Language: code})
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, data, 0644)
}
