// Package profile keeps named camera profiles in a TOML file so one machine
// can switch between several cameras without editing the main config.
package profile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/protocol"
	"github.com/Rizzu97/app/internal/util"
)

var (
	ErrNoProfiles          = errors.New("no camera profiles, add one with 'camstream camera add'")
	ErrProfileNotFound     = errors.New("camera profile not found")
	ErrCannotDeleteCurrent = errors.New("cannot delete the current camera profile, switch to another one first")
)

// ProfileConfig is the on-disk document.
type ProfileConfig struct {
	Current  string             `toml:"current"`
	Profiles map[string]Profile `toml:"cameras"`
}

// Profile describes one camera.
type Profile struct {
	Host       string `toml:"host"`
	Protocol   string `toml:"protocol,omitempty"`
	VideoPort  int    `toml:"video_port,omitempty"`
	ButtonPort int    `toml:"button_port,omitempty"`
	User       string `toml:"user,omitempty"`
	Password   string `toml:"password,omitempty"` // base64 encoded
}

// ProfileManager manages the profile file
type ProfileManager struct {
	config ProfileConfig
	path   string
}

// NewProfileManager creates a manager backed by path.
func NewProfileManager(path string) *ProfileManager {
	return &ProfileManager{
		config: ProfileConfig{Profiles: make(map[string]Profile)},
		path:   path,
	}
}

// Load reads the profile file. A missing or empty file yields no profiles.
func (pm *ProfileManager) Load() error {
	data, err := os.ReadFile(pm.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read profile file")
	}

	cfg := ProfileConfig{}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return errors.Wrapf(err, "failed to parse profile file %s", pm.path)
		}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	pm.config = cfg
	return nil
}

// Save writes the profile file
func (pm *ProfileManager) Save() error {
	if err := os.MkdirAll(filepath.Dir(pm.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := toml.Marshal(pm.config)
	if err != nil {
		return errors.Wrap(err, "failed to serialize profile data")
	}

	// Profiles may carry camera credentials
	if err := os.WriteFile(pm.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write profile file")
	}
	return nil
}

// Add stores p under a normalized id and returns that id. The first profile
// becomes current.
func (pm *ProfileManager) Add(id string, p Profile) (string, error) {
	if p.Host == "" {
		return "", errors.New("camera host is required")
	}
	if p.Protocol != "" {
		v, err := protocol.ParseVariant(p.Protocol)
		if err != nil {
			return "", err
		}
		p.Protocol = v.String()
	}
	if p.Password != "" {
		p.Password = base64.StdEncoding.EncodeToString([]byte(p.Password))
	}

	id = normalizeID(id)
	pm.config.Profiles[id] = p
	if pm.config.Current == "" {
		pm.config.Current = id
	}
	if err := pm.Save(); err != nil {
		return "", err
	}
	util.GetLogger().Debug("Camera profile saved", "id", id, "host", p.Host)
	return id, nil
}

// Use sets the current profile
func (pm *ProfileManager) Use(id string) error {
	if len(pm.config.Profiles) == 0 {
		return ErrNoProfiles
	}
	if _, ok := pm.config.Profiles[id]; !ok {
		return errors.Wrap(ErrProfileNotFound, id)
	}
	pm.config.Current = id
	return pm.Save()
}

// Remove deletes a profile. The current one can only go when it is the last.
func (pm *ProfileManager) Remove(id string) error {
	if _, ok := pm.config.Profiles[id]; !ok {
		return errors.Wrap(ErrProfileNotFound, id)
	}
	if id == pm.config.Current && len(pm.config.Profiles) > 1 {
		return ErrCannotDeleteCurrent
	}

	delete(pm.config.Profiles, id)
	if id == pm.config.Current {
		pm.config.Current = ""
	}
	return pm.Save()
}

// Get returns the profile stored under id.
func (pm *ProfileManager) Get(id string) (Profile, bool) {
	p, ok := pm.config.Profiles[id]
	return p, ok
}

// GetCurrent returns the current profile, if one is set.
func (pm *ProfileManager) GetCurrent() (string, Profile, bool) {
	if pm.config.Current == "" {
		return "", Profile{}, false
	}
	p, ok := pm.config.Profiles[pm.config.Current]
	return pm.config.Current, p, ok
}

// IDs returns the profile ids in sorted order.
func (pm *ProfileManager) IDs() []string {
	ids := make([]string, 0, len(pm.config.Profiles))
	for id := range pm.config.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DecodePassword returns the clear text password.
func (p Profile) DecodePassword() (string, error) {
	if p.Password == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(p.Password)
	if err != nil {
		return "", errors.Wrap(err, "invalid stored password")
	}
	return string(b), nil
}

// Settings maps the profile onto config keys. Unset fields are left out so
// the config defaults apply.
func (p Profile) Settings() (map[string]any, error) {
	s := map[string]any{"camera.host": p.Host}
	if p.Protocol != "" {
		s["camera.protocol"] = p.Protocol
	}
	if p.VideoPort != 0 {
		s["camera.video_port"] = p.VideoPort
	}
	if p.ButtonPort != 0 {
		s["camera.button_port"] = p.ButtonPort
	}
	if p.User != "" {
		pwd, err := p.DecodePassword()
		if err != nil {
			return nil, err
		}
		q := url.Values{}
		q.Set("user", p.User)
		q.Set("pwd", pwd)
		s["camera.http_path"] = "/videostream.cgi?" + q.Encode()
	}
	return s, nil
}

// List writes the profiles as a table or, with format "json", a JSON array.
func (pm *ProfileManager) List(w io.Writer, format string) error {
	ids := pm.IDs()

	if format == "json" {
		out := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			p := pm.config.Profiles[id]
			out = append(out, map[string]any{
				"id":       id,
				"host":     p.Host,
				"protocol": p.Protocol,
				"user":     p.User,
				"current":  id == pm.config.Current,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(ids) == 0 {
		fmt.Fprintln(w, "No camera profiles found")
		return nil
	}

	rows := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		p := pm.config.Profiles[id]
		display := "  " + id
		if id == pm.config.Current {
			display = color.GreenString("→ " + id)
		}
		port := ""
		if p.VideoPort != 0 {
			port = strconv.Itoa(p.VideoPort)
		}
		rows = append(rows, map[string]string{
			"id":       display,
			"host":     p.Host,
			"protocol": p.Protocol,
			"port":     port,
			"user":     p.User,
		})
	}
	util.RenderTable(w, []util.TableColumn{
		{Header: "  ID", Key: "id"},
		{Header: "HOST", Key: "host"},
		{Header: "PROTOCOL", Key: "protocol"},
		{Header: "PORT", Key: "port"},
		{Header: "USER", Key: "user"},
	}, rows)
	return nil
}

// normalizeID lowercases id and keeps only letters, digits and hyphens
func normalizeID(id string) string {
	normalized := strings.ToLower(id)
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")

	var result strings.Builder
	for _, char := range normalized {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') || char == '-' {
			result.WriteRune(char)
		}
	}

	normalized = result.String()
	if normalized == "" {
		normalized = "camera"
	}
	return normalized
}
