package main

import (
	"encoding/json"
	"fmt"

	"github.com/golemfactory/golem-imager/config"
	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// settings are the configuration flags shared by write and config set. Only
// flags given on the command line are applied.
type settings struct {
	network        string
	netType        string
	subnet         string
	wallet         string
	glmPerHour     string
	nodeName       string
	sshKeys        string
	configServer   string
	centralNetHost string
	metricsURL     string
	metricsJob     string
	metricsGroup   string
	nonInteractive bool
	acceptedTerms  bool
}

func (s *settings) register(f *pflag.FlagSet) {
	f.StringVar(&s.network, "network", "testnet", "payment network: testnet or mainnet")
	f.StringVar(&s.netType, "net-type", "central", "network type: central or hybrid")
	f.StringVar(&s.subnet, "subnet", config.DefaultSubnet, "subnet")
	f.StringVar(&s.wallet, "wallet", "", "wallet address")
	f.StringVar(&s.glmPerHour, "glm-per-hour", config.DefaultGLMPerHour, "GLM per hour")
	f.StringVar(&s.nodeName, "node-name", "", "node name")
	f.StringVar(&s.sshKeys, "ssh-keys", "", "SSH public keys, comma or newline separated")
	f.StringVar(&s.configServer, "configuration-server", "", "configuration server URL")
	f.StringVar(&s.centralNetHost, "central-net-host", "", "central network relay host")
	f.StringVar(&s.metricsURL, "metrics-url", "", "metrics push URL")
	f.StringVar(&s.metricsJob, "metrics-job", "", "metrics job name")
	f.StringVar(&s.metricsGroup, "metrics-group", "", "metrics group")
	f.BoolVar(&s.nonInteractive, "non-interactive", false, "install without prompts on first boot")
	f.BoolVar(&s.acceptedTerms, "accepted-terms", true, "terms of use accepted")
}

func (s *settings) apply(f *pflag.FlagSet, c *config.Config) {
	set := func(name string, fn func()) {
		if f.Changed(name) {
			fn()
		}
	}
	set("network", func() { c.PaymentNetwork = config.ParsePaymentNetwork(s.network) })
	set("net-type", func() { c.NetworkType = config.ParseNetworkType(s.netType) })
	set("subnet", func() { c.Subnet = s.subnet })
	set("wallet", func() { c.WalletAddress = s.wallet })
	set("glm-per-hour", func() { c.GLMPerHour = s.glmPerHour })
	set("node-name", func() { c.NodeName = s.nodeName })
	set("ssh-keys", func() { c.SSHKeys = config.ParseSSHKeys(s.sshKeys) })
	set("configuration-server", func() { c.ConfigurationServer = s.configServer })
	set("central-net-host", func() { c.CentralNetHost = s.centralNetHost })
	set("metrics-url", func() { c.MetricsURL = s.metricsURL })
	set("metrics-job", func() { c.MetricsJobName = s.metricsJob })
	set("metrics-group", func() { c.MetricsGroup = s.metricsGroup })
	set("non-interactive", func() { c.NonInteractive = s.nonInteractive })
	set("accepted-terms", func() { c.AcceptedTerms = s.acceptedTerms })
}

func newConfigCmd(a *app) *cobra.Command {
	var (
		dev  string
		uuid string
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the configuration of a provisioned disk",
	}
	cmd.PersistentFlags().StringVarP(&dev, "device", "d", "", "provisioned disk")
	cmd.PersistentFlags().StringVar(&uuid, "uuid", config.DefaultPartitionUUID, "unique GUID of the configuration partition")
	_ = cmd.MarkPersistentFlagRequired("device")

	var (
		asJSON bool
		format bool
	)
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := device.Options{ReadOnly: !format, EditMode: true}
			h, err := cli.Open(cmd.Context(), a.devices(), dev, opts)
			if err != nil {
				return err
			}
			defer h.Close()
			if format {
				if err := h.PreWriteChecks(); err != nil {
					return err
				}
			}
			s, err := device.Storage(h)
			if err != nil {
				return err
			}
			c, err := config.ReadWithOptions(s, uuid, config.ReadOptions{FormatIfNeeded: format})
			if err != nil {
				return err
			}
			if format {
				if err := device.Finish(h, s); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			_, err = a.out.Write(c.TOML())
			return err
		},
	}
	get.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	get.Flags().BoolVar(&format, "format-if-needed", false, "format an unreadable partition instead of failing")

	var s settings
	set := &cobra.Command{
		Use:   "set",
		Short: "Change configuration values, keeping the others",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := cli.Open(cmd.Context(), a.devices(), dev, device.Options{EditMode: true})
			if err != nil {
				return err
			}
			defer h.Close()
			if err := h.PreWriteChecks(); err != nil {
				return err
			}
			st, err := device.Storage(h)
			if err != nil {
				return err
			}
			c, err := config.ReadWithOptions(st, uuid, config.ReadOptions{FormatIfNeeded: true})
			if err != nil {
				return err
			}
			s.apply(cmd.Flags(), c)
			if err := config.Write(st, uuid, c); err != nil {
				return err
			}
			if err := device.Finish(h, st); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Configuration on %s updated\n", dev)
			return nil
		},
	}
	s.register(set.Flags())

	cmd.AddCommand(get, set)
	return cmd
}
