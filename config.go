package demagnetize

import (
	"io/ioutil"
	"os"
	"time"

	"gopkg.in/yaml.v1"
)

// Config carries every tunable a production client exposes, even the
// ones a bare CLI rarely changes from their defaults.
type Config struct {
	// PeerIDPrefix is the fixed leading portion of every generated peer
	// ID, e.g. "-DM-XXXX-"; the remainder is filled with random
	// alphanumeric characters up to 20 bytes total.
	PeerIDPrefix string `yaml:"peer_id_prefix"`
	// ClientVersion is sent as the BEP 10 "v" field and the HTTP
	// tracker's User-Agent.
	ClientVersion string `yaml:"client_version"`

	TrackerTimeout       time.Duration `yaml:"tracker_timeout"`
	TrackerStopTimeout   time.Duration `yaml:"tracker_stop_timeout"`
	PeerHandshakeTimeout time.Duration `yaml:"peer_handshake_timeout"`
	KeepalivePeriod      time.Duration `yaml:"keepalive_period"`

	PeersPerMagnetLimit int `yaml:"peers_per_magnet_limit"`
	NumWant             int `yaml:"numwant"`
	Left                int `yaml:"left"`
}

// DefaultConfig matches the constants table: numwant=50, left=65535,
// a 30-second tracker timeout, a 60-second peer handshake timeout, and
// so on.
var DefaultConfig = Config{
	PeerIDPrefix:         "-DM-XXXX-",
	ClientVersion:        "demagnetize/1.0.0",
	TrackerTimeout:       30 * time.Second,
	TrackerStopTimeout:   3 * time.Second,
	PeerHandshakeTimeout: 60 * time.Second,
	KeepalivePeriod:      120 * time.Second,
	PeersPerMagnetLimit:  30,
	NumWant:              50,
	Left:                 65535,
}

// LoadConfig reads a YAML config file, falling back to DefaultConfig
// when filename does not exist.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
