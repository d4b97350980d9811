package publish

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	yaml "gopkg.in/yaml.v3"

	"tlnote/bilibili"
)

// Memo remembers outcome of the last successful pass, so the next one could
// be skipped when nothing changed on the platform.
type Memo struct {
	BVID   string    `yaml:"bvid"`
	CIDs   []int64   `yaml:"cids,flow"`
	NoteID string    `yaml:"note_id,omitempty"`
	PassID string    `yaml:"pass_id"`
	Time   time.Time `yaml:"time"`
}

// LoadMemo reads memo file, absent file is not an error.
func LoadMemo(path string) (*Memo, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read memo: %w", err)
	}
	var m Memo
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unable to decode memo %s: %w", path, err)
	}
	return &m, nil
}

// Save writes memo file.
func (m *Memo) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("unable to write memo: %w", err)
	}
	return nil
}

// Unchanged reports whether video still has the same parts.
func (m *Memo) Unchanged(v *bilibili.Video) bool {
	if m == nil || v == nil {
		return false
	}
	return m.BVID == v.BVID && slices.Equal(m.CIDs, v.CIDs())
}
