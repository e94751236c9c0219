// Package scconfig loads shardcast node settings from a YAML file.
//
// The file is located by the SHARDCAST_CONFIG environment variable
// or passed explicitly to [LoadFile].
// Values absent from the file keep the defaults from [Default].
// Unknown keys are rejected so that typos do not silently fall back to defaults.
package scconfig

import (
	"bytes"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gordian-engine/shardcast"
	"github.com/gordian-engine/shardcast/scmerkle"
	"github.com/gordian-engine/shardcast/scmerkle/scblake3"
	"github.com/gordian-engine/shardcast/scmerkle/scsha256"
	"github.com/gordian-engine/shardcast/scquic"
	"github.com/gordian-engine/shardcast/scsig"
	"github.com/gordian-engine/shardcast/scunit"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by [Load].
const EnvVar = "SHARDCAST_CONFIG"

// Config is the root of the configuration file.
type Config struct {
	// Identity of the local node.
	Self string `yaml:"self"`

	Erasure ErasureConfig `yaml:"erasure"`

	// Merkle hasher for message roots: "blake3" or "sha256".
	Hasher string `yaml:"hasher"`

	Signing SigningConfig `yaml:"signing"`

	// Retention of finalized message keys, as a Go duration string.
	FinalizedTTL time.Duration `yaml:"finalized_ttl"`

	// Zero means a quarter of FinalizedTTL.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	MaxPendingPerChannel int `yaml:"max_pending_per_channel"`

	// Emit rejection outputs for invalid shards.
	ReportRejections bool `yaml:"report_rejections"`

	Transport TransportConfig `yaml:"transport"`

	Channels []ChannelConfig `yaml:"channels"`
}

// ErasureConfig sets the shard counts for every broadcast.
type ErasureConfig struct {
	DataShards     int `yaml:"data_shards"`
	RecoveryShards int `yaml:"recovery_shards"`
}

// SigningConfig selects the signature scheme and the local key.
type SigningConfig struct {
	// "ed25519" or "pkix".
	Scheme string `yaml:"scheme"`

	// Hex-encoded 32-byte Ed25519 seed, for the ed25519 scheme.
	Ed25519Seed string `yaml:"ed25519_seed"`

	// PEM certificate and key, for the pkix scheme.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TransportConfig maps to [scquic.AdapterConfig].
type TransportConfig struct {
	ProtocolID    uint8         `yaml:"protocol_id"`
	MaxUnitSize   uint32        `yaml:"max_unit_size"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	SendQueueSize int           `yaml:"send_queue_size"`
}

// ChannelConfig is a channel registered at startup.
type ChannelConfig struct {
	ID    string       `yaml:"id"`
	Peers []PeerConfig `yaml:"peers"`
}

// PeerConfig is one channel member.
type PeerConfig struct {
	ID string `yaml:"id"`

	// Hex-encoded public key in the configured signing scheme's format.
	PubKey string `yaml:"pub_key"`
}

// Default returns the configuration used for any value
// not present in a loaded file.
func Default() *Config {
	return &Config{
		Erasure: ErasureConfig{
			DataShards:     16,
			RecoveryShards: 8,
		},
		Hasher: "blake3",
		Signing: SigningConfig{
			Scheme: "ed25519",
		},
		FinalizedTTL:         shardcast.DefaultFinalizedTTL,
		MaxPendingPerChannel: shardcast.DefaultMaxPendingPerChannel,
		Transport: TransportConfig{
			ProtocolID:    0x5c,
			MaxUnitSize:   scunit.MaxUnitSize,
			StreamTimeout: 10 * time.Second,
			SendQueueSize: 256,
		},
	}
}

// Load loads the file named by [EnvVar].
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads, parses, and validates the file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over [Default] and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document leaves the defaults in place.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []error

	if c.Self == "" {
		errs = append(errs, errors.New("self must be set"))
	}
	if c.Erasure.DataShards <= 0 {
		errs = append(errs, fmt.Errorf("erasure.data_shards must be positive (got %d)", c.Erasure.DataShards))
	}
	if c.Erasure.RecoveryShards < 0 {
		errs = append(errs, fmt.Errorf("erasure.recovery_shards must not be negative (got %d)", c.Erasure.RecoveryShards))
	}
	if _, err := c.hasher(); err != nil {
		errs = append(errs, err)
	}

	switch c.Signing.Scheme {
	case "ed25519":
		if c.Signing.Ed25519Seed == "" {
			errs = append(errs, errors.New("signing.ed25519_seed must be set for ed25519 scheme"))
		}
	case "pkix":
		if c.Signing.CertFile == "" || c.Signing.KeyFile == "" {
			errs = append(errs, errors.New("signing.cert_file and signing.key_file must be set for pkix scheme"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown signing.scheme %q", c.Signing.Scheme))
	}

	if c.FinalizedTTL <= 0 {
		errs = append(errs, fmt.Errorf("finalized_ttl must be positive (got %s)", c.FinalizedTTL))
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == "" {
			errs = append(errs, fmt.Errorf("channels[%d].id must be set", i))
			continue
		}
		if _, dup := seen[ch.ID]; dup {
			errs = append(errs, fmt.Errorf("channel %q listed more than once", ch.ID))
		}
		seen[ch.ID] = struct{}{}

		for j, p := range ch.Peers {
			if _, err := hex.DecodeString(p.PubKey); err != nil {
				errs = append(errs, fmt.Errorf("channels[%d].peers[%d].pub_key: %w", i, j, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (c *Config) hasher() (scmerkle.Hasher, error) {
	switch c.Hasher {
	case "blake3":
		return scblake3.Hasher{}, nil
	case "sha256":
		return scsha256.Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", c.Hasher)
	}
}

// Signer loads the local signing key.
func (c *Config) Signer() (scsig.Signer, error) {
	switch c.Signing.Scheme {
	case "ed25519":
		seed, err := hex.DecodeString(c.Signing.Ed25519Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ed25519 seed: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("ed25519 seed must be %d bytes (got %d)", ed25519.SeedSize, len(seed))
		}
		return scsig.NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil

	case "pkix":
		cert, err := tls.LoadX509KeyPair(c.Signing.CertFile, c.Signing.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return scsig.NewTLSCertSigner(cert)

	default:
		return nil, fmt.Errorf("unknown signing scheme %q", c.Signing.Scheme)
	}
}

// Verifier returns the verifier matching the signing scheme.
func (c *Config) Verifier() scsig.Verifier {
	if c.Signing.Scheme == "pkix" {
		return scsig.PKIXVerifier{}
	}
	return scsig.Ed25519Verifier{}
}

// EngineConfig builds the engine configuration,
// loading the signing key from disk when needed.
func (c *Config) EngineConfig() (shardcast.EngineConfig, error) {
	h, err := c.hasher()
	if err != nil {
		return shardcast.EngineConfig{}, err
	}

	signer, err := c.Signer()
	if err != nil {
		return shardcast.EngineConfig{}, err
	}

	return shardcast.EngineConfig{
		Self:     scunit.PeerID(c.Self),
		Signer:   signer,
		Verifier: c.Verifier(),
		Hasher:   h,

		DataShards:     c.Erasure.DataShards,
		RecoveryShards: c.Erasure.RecoveryShards,

		FinalizedTTL:         c.FinalizedTTL,
		SweepInterval:        c.SweepInterval,
		MaxPendingPerChannel: c.MaxPendingPerChannel,
		ReportRejections:     c.ReportRejections,
	}, nil
}

// AdapterConfig returns the QUIC adapter configuration.
func (c *Config) AdapterConfig() scquic.AdapterConfig {
	return scquic.AdapterConfig{
		ProtocolID:    c.Transport.ProtocolID,
		MaxUnitSize:   c.Transport.MaxUnitSize,
		StreamTimeout: c.Transport.StreamTimeout,
		SendQueueSize: c.Transport.SendQueueSize,
	}
}

// ChannelPeers returns the startup channels keyed by ID.
func (c *Config) ChannelPeers() (map[scunit.ChannelID][]scunit.Peer, error) {
	out := make(map[scunit.ChannelID][]scunit.Peer, len(c.Channels))
	for _, ch := range c.Channels {
		peers := make([]scunit.Peer, len(ch.Peers))
		for i, p := range ch.Peers {
			pub, err := hex.DecodeString(p.PubKey)
			if err != nil {
				return nil, fmt.Errorf("channel %q peer %q: %w", ch.ID, p.ID, err)
			}
			peers[i] = scunit.Peer{ID: scunit.PeerID(p.ID), PubKey: pub}
		}
		out[scunit.ChannelID(ch.ID)] = peers
	}
	return out, nil
}
