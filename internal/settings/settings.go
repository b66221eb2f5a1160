// Package settings persists the user's effect configuration and visualizer
// preferences as a JSON file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"

	"github.com/olivier-w/harmonia/internal/effects"
	"github.com/olivier-w/harmonia/internal/logging"
)

// ErrCorrupt is returned by Load when the file exists but cannot be parsed.
// The returned Settings are the defaults in that case.
var ErrCorrupt = errors.New("settings file is corrupt")

const (
	appDir   = "harmonia"
	fileName = "settings.json"
)

// Visualizer holds the renderer preferences by name so the file stays
// readable.
type Visualizer struct {
	Style     string `json:"style"`
	Quality   string `json:"quality"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

// Settings is everything that survives a restart.
type Settings struct {
	Effects    effects.State `json:"effects"`
	Visualizer Visualizer    `json:"visualizer"`
	Volume     float64       `json:"volume"`
	Crossfade  float64       `json:"crossfadeSeconds"`
}

// Default returns the settings used when nothing is stored.
func Default() Settings {
	return Settings{
		Effects: effects.Default(),
		Visualizer: Visualizer{
			Style:     "bars",
			Quality:   "high",
			Primary:   "#3b82f6",
			Secondary: "#8b5cf6",
			Accent:    "#ec4899",
		},
		Volume:    0.8,
		Crossfade: 3,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/harmonia/settings.json, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appDir, fileName), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDir, fileName), nil
}

// Store reads and writes one settings file.
type Store struct {
	path string
	log  logrus.FieldLogger
}

// NewStore returns a store for path. A leading ~ is expanded.
func NewStore(path string, log logrus.FieldLogger) (*Store, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: p, log: logging.OrDiscard(log)}, nil
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load returns the stored settings layered over the defaults, so fields
// missing from an older file keep their default values. A missing file is
// not an error.
func (s *Store) Load() (Settings, error) {
	out := Default()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.WithField("path", s.path).Debug("no settings file, using defaults")
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("reading settings: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("ignoring unreadable settings")
		return Default(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

// Save writes the settings atomically, replacing the previous file.
func (s *Store) Save(v Settings) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*")
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("saving settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	s.log.WithField("path", s.path).Debug("settings saved")
	return nil
}
