// Package config reads and writes the node configuration kept on the small FAT
// partition of a provisioned image: golemwz.toml and golem.env.
package config

import (
	"fmt"
	"strings"

	"github.com/golemfactory/golem-imager/backend"
)

const (
	// DefaultPartitionUUID is the unique GUID of the config partition of
	// released images.
	DefaultPartitionUUID = "33b921b8-edc5-46a0-8baa-d0b7ad84fc71"
	DefaultSubnet        = "public"
	DefaultGLMPerHour    = "0.25"
	DefaultMetricsURL    = "https://metrics.golem.network:9092/"
	DefaultMetricsJob    = "community.1"
)

type PaymentNetwork int

const (
	Testnet PaymentNetwork = iota
	Mainnet
)

func (p PaymentNetwork) String() string {
	if p == Mainnet {
		return "mainnet"
	}
	return "testnet"
}

func (p PaymentNetwork) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PaymentNetwork) UnmarshalText(b []byte) error {
	*p = ParsePaymentNetwork(string(b))
	return nil
}

// ParsePaymentNetwork maps anything but "mainnet" to Testnet.
func ParsePaymentNetwork(s string) PaymentNetwork {
	if strings.EqualFold(strings.TrimSpace(s), "mainnet") {
		return Mainnet
	}
	return Testnet
}

type NetworkType int

const (
	Central NetworkType = iota
	Hybrid
)

func (n NetworkType) String() string {
	if n == Hybrid {
		return "hybrid"
	}
	return "central"
}

func (n NetworkType) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NetworkType) UnmarshalText(b []byte) error {
	*n = ParseNetworkType(string(b))
	return nil
}

// ParseNetworkType maps anything but "hybrid" to Central.
func ParseNetworkType(s string) NetworkType {
	if strings.EqualFold(strings.TrimSpace(s), "hybrid") {
		return Hybrid
	}
	return Central
}

// Config is the node configuration. Empty optional strings are left out of the
// rendered files.
type Config struct {
	PaymentNetwork      PaymentNetwork `json:"payment_network"`
	NetworkType         NetworkType    `json:"network_type"`
	Subnet              string         `json:"subnet"`
	WalletAddress       string         `json:"wallet_address"`
	GLMPerHour          string         `json:"glm_per_hour"`
	AcceptedTerms       bool           `json:"accepted_terms"`
	NodeName            string         `json:"node_name,omitempty"`
	NonInteractive      bool           `json:"non_interactive_install"`
	SSHKeys             []string       `json:"ssh_keys,omitempty"`
	ConfigurationServer string         `json:"configuration_server,omitempty"`
	CentralNetHost      string         `json:"central_net_host,omitempty"`
	MetricsURL          string         `json:"metrics_url,omitempty"`
	MetricsJobName      string         `json:"metrics_job_name,omitempty"`
	MetricsGroup        string         `json:"metrics_group,omitempty"`
}

// Default is the configuration assumed for keys missing from the partition.
func Default() *Config {
	return &Config{
		PaymentNetwork: Testnet,
		NetworkType:    Central,
		Subnet:         DefaultSubnet,
		GLMPerHour:     DefaultGLMPerHour,
		AcceptedTerms:  true,
	}
}

// ParseSSHKeys splits keys given one per line or comma separated.
func ParseSSHKeys(s string) []string {
	sep := ","
	if strings.Contains(s, "\n") {
		sep = "\n"
	}
	var keys []string
	for _, k := range strings.Split(s, sep) {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate rejects values that cannot be represented in both files.
func (c *Config) Validate() error {
	values := map[string]string{
		"subnet":               c.Subnet,
		"wallet address":       c.WalletAddress,
		"GLM per hour":         c.GLMPerHour,
		"node name":            c.NodeName,
		"configuration server": c.ConfigurationServer,
		"central net host":     c.CentralNetHost,
		"metrics URL":          c.MetricsURL,
		"metrics job name":     c.MetricsJobName,
		"metrics group":        c.MetricsGroup,
	}
	for i, k := range c.SSHKeys {
		values[fmt.Sprintf("ssh key %d", i+1)] = k
	}
	for name, v := range values {
		if strings.ContainsAny(v, "\r\n\"") {
			return fmt.Errorf("%s %q contains a line break or quote: %w", name, v, backend.ErrInvalidInput)
		}
	}
	return nil
}
