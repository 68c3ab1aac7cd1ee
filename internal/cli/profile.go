package cli

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/irportal/anchorsign/internal/timex"
)

// TokenEnv overrides the profile's access token.
const TokenEnv = "ANCHORSIGN_TOKEN"

// Profile holds signctl connection defaults. Timeout may be written as a
// duration string ("30s") or integer nanoseconds.
type Profile struct {
	ServerURL string         `json:"server_url"`
	GRPCAddr  string         `json:"grpc_addr"`
	Token     string         `json:"token"`
	Timeout   timex.Duration `json:"timeout"`
}

func DefaultProfile() Profile {
	return Profile{
		ServerURL: "http://127.0.0.1:8080",
		GRPCAddr:  "127.0.0.1:50051",
		Timeout:   timex.Duration{Duration: 30 * time.Second},
	}
}

// defaultProfilePath is a test seam.
var defaultProfilePath = func() string {
	return filepath.Join(xdg.ConfigHome, "anchorsign", "signctl.json")
}

// LoadProfile overlays the defaults with the JSON file at path. An empty path
// means the default location, which may be absent; an explicit path must
// exist.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	explicit := path != ""
	if !explicit {
		path = defaultProfilePath()
		if path == "" {
			return p, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return p, err
	}

	var fp Profile
	if err := json.Unmarshal(data, &fp); err != nil {
		return p, err
	}
	if fp.ServerURL != "" {
		p.ServerURL = fp.ServerURL
	}
	if fp.GRPCAddr != "" {
		p.GRPCAddr = fp.GRPCAddr
	}
	if fp.Token != "" {
		p.Token = fp.Token
	}
	if fp.Timeout.Duration > 0 {
		p.Timeout = fp.Timeout
	}
	return p, nil
}
