// Package config resolves an Instance's Settings and seed-peer list from a
// TOML file with command-line flag overrides, the way a real deployment
// would: the swim.Instance itself never touches a file, an environment
// variable, or a flag.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"swimguard/internal/swim"
)

// Peer is one seed entry from the peers list: an optional process UID
// plus the network endpoint to dial. UID is usually empty for
// operator-supplied bootstrap addresses; the Instance treats those as
// UID-less nodes until the first successful interaction replaces them.
type Peer struct {
	UID      string
	Endpoint string
}

// ParsePeers parses a comma-separated seed list in the form
// "endpoint[,endpoint...]" or "uid=endpoint[,uid=endpoint...]" — a bare
// endpoint with no "=" is a UID-less bootstrap entry.
func ParsePeers(peersStr string) ([]Peer, error) {
	if strings.TrimSpace(peersStr) == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, "=") {
			peers = append(peers, Peer{Endpoint: part})
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		uid := strings.TrimSpace(kv[0])
		endpoint := strings.TrimSpace(kv[1])
		if uid == "" || endpoint == "" {
			return nil, fmt.Errorf("invalid peer format: %s (expected uid=endpoint or a bare endpoint)", part)
		}
		peers = append(peers, Peer{UID: uid, Endpoint: endpoint})
	}

	return peers, nil
}

// BuildSwimNodes converts a peer list into swim.Node values suitable for
// seeding an Instance's membership table, for use by the shell at startup.
func BuildSwimNodes(peers []Peer) []swim.Node {
	nodes := make([]swim.Node, 0, len(peers))
	for _, p := range peers {
		nodes = append(nodes, swim.Node{Endpoint: p.Endpoint, UID: p.UID})
	}
	return nodes
}

// LifeguardConfig mirrors the `lifeguard.*` table of spec §6.
type LifeguardConfig struct {
	MaxLocalHealthMultiplier int           `toml:"max_local_health_multiplier"`
	SuspicionTimeoutMin      time.Duration `toml:"suspicion_timeout_min"`
	SuspicionTimeoutMax      time.Duration `toml:"suspicion_timeout_max"`
	MaxIndependentSuspicions int           `toml:"max_independent_suspicions"`
}

// GossipConfig mirrors the `gossip.*` table of spec §6.
type GossipConfig struct {
	MaxMessagesPerGossip int     `toml:"max_messages_per_gossip"`
	DisseminationLambda  float64 `toml:"dissemination_lambda"`
}

// FileConfig is the root of a node's TOML configuration file.
type FileConfig struct {
	NodeUID                       string          `toml:"node_uid"`
	ListenAddr                    string          `toml:"listen_addr"`
	Peers                         string          `toml:"peers"`
	ProbeInterval                 time.Duration   `toml:"probe_interval"`
	PingTimeout                   time.Duration   `toml:"ping_timeout"`
	IndirectProbeCount            int             `toml:"indirect_probe_count"`
	IndirectPingTimeoutMultiplier float64         `toml:"indirect_ping_timeout_multiplier"`
	ExtensionUnreachability       bool            `toml:"extension_unreachability"`
	Lifeguard                     LifeguardConfig `toml:"lifeguard"`
	Gossip                        GossipConfig    `toml:"gossip"`
}

// Load decodes a FileConfig from a TOML file at path, starting from
// DefaultFileConfig so a file only needs to override what it cares about.
func Load(path string) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// DefaultFileConfig mirrors swim.DefaultSettings in TOML-native form.
func DefaultFileConfig() FileConfig {
	d := swim.DefaultSettings()
	return FileConfig{
		ListenAddr:                    "0.0.0.0:7946",
		ProbeInterval:                 d.ProbeInterval,
		PingTimeout:                   d.PingTimeout,
		IndirectProbeCount:            d.IndirectProbeCount,
		IndirectPingTimeoutMultiplier: d.IndirectPingTimeoutMultiplier,
		ExtensionUnreachability:       d.ExtensionUnreachability,
		Lifeguard: LifeguardConfig{
			MaxLocalHealthMultiplier: d.MaxLocalHealthMultiplier,
			SuspicionTimeoutMin:      d.SuspicionTimeoutMin,
			SuspicionTimeoutMax:      d.SuspicionTimeoutMax,
			MaxIndependentSuspicions: d.MaxIndependentSuspicions,
		},
		Gossip: GossipConfig{
			MaxMessagesPerGossip: d.MaxMessagesPerGossip,
			DisseminationLambda:  3,
		},
	}
}

// Settings converts the file configuration into swim.Settings.
func (c FileConfig) Settings() swim.Settings {
	return swim.Settings{
		ProbeInterval:                 c.ProbeInterval,
		PingTimeout:                   c.PingTimeout,
		IndirectProbeCount:            c.IndirectProbeCount,
		IndirectPingTimeoutMultiplier: c.IndirectPingTimeoutMultiplier,
		MaxLocalHealthMultiplier:      c.Lifeguard.MaxLocalHealthMultiplier,
		SuspicionTimeoutMin:           c.Lifeguard.SuspicionTimeoutMin,
		SuspicionTimeoutMax:           c.Lifeguard.SuspicionTimeoutMax,
		MaxIndependentSuspicions:      c.Lifeguard.MaxIndependentSuspicions,
		MaxMessagesPerGossip:          c.Gossip.MaxMessagesPerGossip,
		NeedsToBeGossipedMoreTimes:    swim.StandardDissemination(c.Gossip.DisseminationLambda),
		ExtensionUnreachability:       c.ExtensionUnreachability,
	}
}

// BindFlags registers cobra flags that override cfg's fields, the pattern
// the pack's CLI entrypoints use to layer flags on top of a config file.
func BindFlags(cmd *cobra.Command, cfg *FileConfig) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.NodeUID, "node-uid", cfg.NodeUID, "this node's process UID (generated if empty)")
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to listen on")
	flags.StringVar(&cfg.Peers, "peers", cfg.Peers, "comma-separated seed peer list (uid=endpoint or bare endpoint)")
	flags.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "base periodic probe interval")
	flags.DurationVar(&cfg.PingTimeout, "ping-timeout", cfg.PingTimeout, "base direct ping timeout")
	flags.IntVar(&cfg.IndirectProbeCount, "indirect-probe-count", cfg.IndirectProbeCount, "number of peers queried on indirect probe")
	flags.BoolVar(&cfg.ExtensionUnreachability, "extension-unreachability", cfg.ExtensionUnreachability, "enable the unreachable status extension")
}
