// Package config loads the router's static YAML configuration
// (SPEC_FULL.md section 2.1): PAN ID, network name, GAK key index,
// interface name, and the neighbor-discovery tunables (base reachable
// time, retransmit timer, multicast solicit count, neighbor table
// capacity).
//
// Grounded on AdGuardHome's internal/home YAML config loading
// (internal/home/log.go's yaml.Unmarshal-into-struct shape), using
// gopkg.in/yaml.v3 per AdGuardHome's locked go.mod dependency.
package config

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full static configuration for one router node.
type Config struct {
	// Interface is the name of the 802.15.4 network interface the RCP
	// bus is bound to.
	Interface string `yaml:"interface"`

	// PANID is the Wi-SUN PAN identifier this node joins.
	PANID uint16 `yaml:"pan_id"`

	// NetworkName derives the GAK alongside the group temporal key
	// (spec.md GLOSSARY: GAK).
	NetworkName string `yaml:"network_name"`

	// EUI64 is this node's 802.15.4 extended address, hex-encoded
	// (e.g. "0011223344556677"). The RCP transport that would otherwise
	// report it is out of scope (spec.md section 1), so it's static
	// configuration here.
	EUI64 string `yaml:"eui64"`

	// GAKKeyIndex is the key index the core expects the authenticator
	// to install (spec.md section 1: "the core only consumes a 'GAK
	// installed for key-index k' event").
	GAKKeyIndex uint8 `yaml:"gak_key_index"`

	Timers Timers `yaml:"timers"`
}

// Timers holds the tunables spec.md calls out as configuration rather
// than protocol constants.
type Timers struct {
	// BaseReachableTime is RFC 4861 section 6.3.4's base reachable
	// time (default 30s, spec.md section 4.2).
	BaseReachableTime time.Duration `yaml:"base_reachable_time"`

	// RetransTimer is the NS retransmission interval (default 1s).
	RetransTimer time.Duration `yaml:"retrans_timer"`

	// MaxMulticastSolicit bounds PROBE retries (default 3).
	MaxMulticastSolicit int `yaml:"max_multicast_solicit"`

	// NeighborTableCapacity bounds the neighbor cache (0 = unbounded).
	NeighborTableCapacity int `yaml:"neighbor_table_capacity"`
}

// ErrMissingInterface is returned by [Validate] when no interface name
// is configured.
const ErrMissingInterface errors.Error = "config: interface name is required"

// ErrMissingNetworkName is returned by [Validate] when no network name
// is configured (GAK derivation needs one).
const ErrMissingNetworkName errors.Error = "config: network_name is required"

// ErrInvalidEUI64 is returned by [Config.ParseEUI64] when the
// configured string isn't exactly 8 hex-encoded bytes.
const ErrInvalidEUI64 errors.Error = "config: eui64 must be 8 hex-encoded bytes"

// Default returns a Config with spec.md's RFC 4861 default timers and
// no interface/network name set (callers must supply those).
func Default() Config {
	return Config{
		Timers: Timers{
			BaseReachableTime:   30 * time.Second,
			RetransTimer:        time.Second,
			MaxMulticastSolicit: 3,
		},
	}
}

// Load reads and parses the YAML configuration at path, starting from
// [Default] so unset fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotate(err, "reading config: %w")
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Annotate(err, "parsing config: %w")
	}

	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports whether cfg has the fields required to bring up an
// interface.
func (c Config) Validate() error {
	var errs []error

	if c.Interface == "" {
		errs = append(errs, ErrMissingInterface)
	}

	if c.NetworkName == "" {
		errs = append(errs, ErrMissingNetworkName)
	}

	if _, err := c.ParseEUI64(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ParseEUI64 decodes [Config.EUI64] into its 8-byte form.
func (c Config) ParseEUI64() (eui64 [8]byte, err error) {
	b, err := hex.DecodeString(c.EUI64)
	if err != nil || len(b) != len(eui64) {
		return eui64, ErrInvalidEUI64
	}

	copy(eui64[:], b)

	return eui64, nil
}
