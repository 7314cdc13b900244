package config

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	keyNetType        = "YA_NET_TYPE"
	keySubnet         = "SUBNET"
	keyPaymentNetwork = "YA_PAYMENT_NETWORK_GROUP"
	keyCentralNetHost = "CENTRAL_NET_HOST"
	keyMetricsURL     = "YAGNA_METRICS_URL"
	keyMetricsJob     = "YAGNA_METRICS_JOB_NAME"
	keyMetricsGroup   = "YAGNA_METRICS_GROUP"
)

// Parse builds a configuration from the two files; either may be nil. Keys of
// golem.env override the [env] table of golemwz.toml. Lines that cannot be
// parsed are skipped.
func Parse(tomlContent, envContent []byte) *Config {
	c := Default()
	if tomlContent != nil {
		parseTOML(tomlContent, c)
	}
	if envContent != nil {
		parseEnv(envContent, c)
	}
	return c
}

// lines calls fn with every non-empty, non-comment line of b.
func lines(b []byte, fn func(line string)) {
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
}

// parseTOML decodes golemwz.toml. A file that is not valid TOML is scanned
// line by line instead, keeping whatever key/value pairs can be recognised.
func parseTOML(b []byte, c *Config) {
	var doc map[string]any
	if err := toml.Unmarshal(b, &doc); err != nil {
		logger.WithError(err).Debug("golemwz.toml is not valid TOML, scanning lines")
		scanTOML(b, c)
		return
	}
	for key, v := range doc {
		if key != "env" {
			setTOMLValue(c, key, v)
			continue
		}
		env, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for k, ev := range env {
			if s, ok := scalar(ev); ok {
				setEnvKey(c, k, s)
			}
		}
	}
}

func setTOMLValue(c *Config, key string, v any) {
	switch key {
	case "accepted_terms":
		if b, ok := v.(bool); ok {
			c.AcceptedTerms = b
		}
	case "non_interactive_install":
		if b, ok := v.(bool); ok {
			c.NonInteractive = b
		}
	case "ssh_keys":
		items, ok := v.([]any)
		if !ok {
			return
		}
		var keys []string
		for _, item := range items {
			if s, ok := item.(string); ok {
				keys = append(keys, s)
			}
		}
		c.SSHKeys = keys
	default:
		if s, ok := scalar(v); ok {
			setStringKey(c, key, s)
		}
	}
}

// scalar renders a decoded string, number or boolean as text, so that
// glm_per_hour = 0.25 reads the same as glm_per_hour = "0.25".
func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

func scanTOML(b []byte, c *Config) {
	section := ""
	lines(b, func(line string) {
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			return
		}
		key, raw, ok := strings.Cut(line, "=")
		if !ok {
			return
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)
		switch section {
		case "":
			setTOMLKey(c, key, raw)
		case "env":
			if v, ok := tomlString(raw); ok {
				setEnvKey(c, key, v)
			}
		}
	})
}

func setTOMLKey(c *Config, key, raw string) {
	switch key {
	case "accepted_terms":
		if v, ok := tomlBool(raw); ok {
			c.AcceptedTerms = v
		}
	case "non_interactive_install":
		if v, ok := tomlBool(raw); ok {
			c.NonInteractive = v
		}
	case "ssh_keys":
		if v, ok := tomlStringArray(raw); ok {
			c.SSHKeys = v
		}
	default:
		if v, ok := tomlString(raw); ok {
			setStringKey(c, key, v)
		}
	}
}

func setStringKey(c *Config, key, v string) {
	switch key {
	case "glm_account":
		c.WalletAddress = v
	case "glm_per_hour":
		c.GLMPerHour = v
	case "glm_node_name":
		c.NodeName = v
	case "configuration_server":
		c.ConfigurationServer = strings.TrimSpace(v)
	}
}

func parseEnv(b []byte, c *Config) {
	lines(b, func(line string) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return
		}
		setEnvKey(c, strings.TrimSpace(key), strings.TrimSpace(value))
	})
}

func setEnvKey(c *Config, key, value string) {
	switch key {
	case keyNetType:
		c.NetworkType = ParseNetworkType(value)
	case keySubnet:
		c.Subnet = value
	case keyPaymentNetwork:
		c.PaymentNetwork = ParsePaymentNetwork(value)
	case keyCentralNetHost:
		c.CentralNetHost = value
	case keyMetricsURL:
		c.MetricsURL = value
	case keyMetricsJob:
		c.MetricsJobName = value
	case keyMetricsGroup:
		c.MetricsGroup = value
	}
}

func tomlBool(raw string) (bool, bool) {
	switch stripComment(raw) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// tomlString unquotes a basic or literal string value. Unquoted values are
// taken as they are, without a trailing comment.
func tomlString(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	switch q := raw[0]; q {
	case '"', '\'':
		end := strings.IndexByte(raw[1:], q)
		if end < 0 {
			return "", false
		}
		s := raw[1 : end+1]
		if q == '"' {
			s = strings.ReplaceAll(s, `\\`, `\`)
		}
		return s, true
	}
	if v := stripComment(raw); v != "" {
		return v, true
	}
	return "", false
}

func tomlStringArray(raw string) ([]string, bool) {
	raw = stripComment(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return nil, false
	}
	var out []string
	for _, item := range strings.Split(raw[1:len(raw)-1], ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if s, ok := tomlString(item); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func stripComment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func metricsDefaults(c *Config) (url, job string) {
	url, job = c.MetricsURL, c.MetricsJobName
	if url == "" {
		url = DefaultMetricsURL
	}
	if job == "" {
		job = DefaultMetricsJob
	}
	return url, job
}

// TOML renders golemwz.toml.
func (c *Config) TOML() []byte {
	var b bytes.Buffer
	b.WriteString("# Golem Configuration\n")
	fmt.Fprintf(&b, "accepted_terms = %t\n", true)
	fmt.Fprintf(&b, "glm_account = %q\n", c.WalletAddress)
	fmt.Fprintf(&b, "glm_per_hour = %q\n", c.GLMPerHour)
	if c.NodeName != "" {
		fmt.Fprintf(&b, "glm_node_name = %q\n", c.NodeName)
	}
	fmt.Fprintf(&b, "non_interactive_install = %t\n", c.NonInteractive)
	keys := make([]string, len(c.SSHKeys))
	for i, k := range c.SSHKeys {
		keys[i] = `"` + k + `"`
	}
	fmt.Fprintf(&b, "ssh_keys = [%s]\n", strings.Join(keys, ", "))
	if c.ConfigurationServer != "" {
		fmt.Fprintf(&b, "configuration_server = %q\n", c.ConfigurationServer)
	}
	b.WriteString("\n# Environment Variables\n[env]\n")
	c.writeEnv(&b, func(k, v string) string { return fmt.Sprintf("%s = %q\n", k, v) })
	return b.Bytes()
}

// Env renders golem.env.
func (c *Config) Env() []byte {
	var b bytes.Buffer
	c.writeEnv(&b, func(k, v string) string { return k + "=" + v + "\n" })
	return b.Bytes()
}

func (c *Config) writeEnv(b *bytes.Buffer, line func(k, v string) string) {
	url, job := metricsDefaults(c)
	b.WriteString(line(keyNetType, c.NetworkType.String()))
	b.WriteString(line(keySubnet, c.Subnet))
	b.WriteString(line(keyPaymentNetwork, c.PaymentNetwork.String()))
	if c.CentralNetHost != "" {
		b.WriteString(line(keyCentralNetHost, c.CentralNetHost))
	}
	b.WriteString(line(keyMetricsURL, url))
	b.WriteString(line(keyMetricsJob, job))
	b.WriteString(line(keyMetricsGroup, c.MetricsGroup))
}
