// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package daemon holds the configuration of the cwmpd daemon.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"cwmpd.io/cwmpd/internal/certutil"
	"cwmpd.io/cwmpd/internal/event"
	"cwmpd.io/cwmpd/internal/pathutil"
	"cwmpd.io/cwmpd/internal/soap"
)

const (
	defaultPort          = 7547
	defaultScript        = "/usr/sbin/cwmp-script"
	defaultPendingScript = "/tmp/cwmpd_set_actions.sh"
	defaultTimeout       = 60 * time.Second
	defaultNotifySocket  = "notify.sock"
)

// ErrConfig is returned when the configuration cannot be loaded or is
// invalid.
var ErrConfig = errors.New("invalid configuration")

// Config represents the set of configuration options of cwmpd.
type Config struct {
	LogLevel      LogLevel            `yaml:"log_level"`
	Local         LocalConfig         `yaml:"local"`
	ACS           ACSConfig           `yaml:"acs"`
	Device        DeviceConfig        `yaml:"device"`
	Backend       BackendConfig       `yaml:"backend"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// LocalConfig describes the CPE side: where connection requests are
// accepted and which event is reported first.
type LocalConfig struct {
	// Source is an IP address or the name of the interface to take it from.
	Source       string `yaml:"source"`
	NotifySocket string `yaml:"notify_socket"`
	// Event is the start-up event, bootstrap or boot.
	Event      string `yaml:"event"`
	Port       int    `yaml:"port"`
	WaitSource bool   `yaml:"wait_source"`
}

// ACSConfig describes how to reach the ACS. The url key may be used as a
// shorthand, its components override the individual keys.
type ACSConfig struct {
	Scheme   string    `yaml:"scheme"`
	Username string    `yaml:"username"`
	Password string    `yaml:"password"`
	Hostname string    `yaml:"hostname"`
	Path     string    `yaml:"path"`
	TLS      TLSConfig `yaml:"tls"`
	Port     int       `yaml:"port"`
}

// TLSConfig holds certificate and key file locations.
type TLSConfig struct {
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// DeviceConfig is the identity reported in every Inform.
type DeviceConfig struct {
	Manufacturer     string `yaml:"manufacturer"`
	OUI              string `yaml:"oui"`
	ProductClass     string `yaml:"product_class"`
	SerialNumber     string `yaml:"serial_number"`
	HardwareVersion  string `yaml:"hardware_version"`
	SoftwareVersion  string `yaml:"software_version"`
	ProvisioningCode string `yaml:"provisioning_code"`
}

// BackendConfig points to the script that reads and writes parameters.
type BackendConfig struct {
	Script        string        `yaml:"script"`
	PendingScript string        `yaml:"pending_script"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds configuration for tracing, metrics,
// and profiling.
type ObservabilityConfig struct {
	Metrics   MetricsConfig   `yaml:"metrics"`
	Profiling ProfilingConfig `yaml:"profiling"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ProfilingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConfig struct {
	OTLPHTTPEndpoint string `yaml:"otlp_http_endpoint"`
	Enabled          bool   `yaml:"enabled"`
}

// Default returns the configuration used for keys missing in the file.
func Default() *Config {
	return &Config{
		LogLevel: InfoLevel,
		Local: LocalConfig{
			Source: "0.0.0.0",
			Port:   defaultPort,
			Event:  "bootstrap",
		},
		ACS: ACSConfig{
			Scheme: "http",
			Port:   defaultPort,
			Path:   "/",
		},
		Backend: BackendConfig{
			Script:        defaultScript,
			PendingScript: defaultPendingScript,
			Timeout:       defaultTimeout,
		},
	}
}

// LoadConfig reads file from fs on top of the defaults and validates the
// result.
func LoadConfig(fs afero.Fs, file string) (*Config, error) {
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config: %w", ErrConfig, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// Validate reports every problem found in c at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	if c.Local.Source == "" {
		errs = append(errs, errors.New("local.source is required"))
	}

	if !validPort(c.Local.Port) {
		errs = append(errs, fmt.Errorf("local.port %d is out of range", c.Local.Port))
	}

	if _, err := c.Local.StartEvent(); err != nil {
		errs = append(errs, err)
	}

	if c.ACS.Scheme != "http" && c.ACS.Scheme != "https" {
		errs = append(errs, fmt.Errorf("acs.scheme must be http or https, got %q", c.ACS.Scheme))
	}

	if c.ACS.Hostname == "" {
		errs = append(errs, errors.New("acs.hostname is required"))
	}

	if !validPort(c.ACS.Port) {
		errs = append(errs, fmt.Errorf("acs.port %d is out of range", c.ACS.Port))
	}

	if c.Device.OUI == "" {
		errs = append(errs, errors.New("device.oui is required"))
	}

	if c.Device.SerialNumber == "" {
		errs = append(errs, errors.New("device.serial_number is required"))
	}

	if c.Backend.Script == "" {
		errs = append(errs, errors.New("backend.script is required"))
	}

	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.OTLPHTTPEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing.otlp_http_endpoint is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}

	return nil
}

// StartEvent returns the event reported by the first Inform.
func (l LocalConfig) StartEvent() (event.Code, error) {
	code, err := event.ParseCode(l.Event)
	if err != nil || (code != event.Bootstrap && code != event.Boot) {
		return 0, fmt.Errorf("local.event must be bootstrap or boot, got %q", l.Event)
	}

	return code, nil
}

// NotifySocketPath returns the configured socket or the default one in the
// runtime directory.
func (l LocalConfig) NotifySocketPath() string {
	if l.NotifySocket != "" {
		return l.NotifySocket
	}

	return pathutil.RunPath(defaultNotifySocket)
}

// URL returns the ACS endpoint, credentials included.
func (a ACSConfig) URL() *url.URL {
	u := &url.URL{
		Scheme: a.Scheme,
		Host:   net.JoinHostPort(a.Hostname, strconv.Itoa(a.Port)),
		Path:   a.Path,
	}

	if a.Username != "" || a.Password != "" {
		u.User = url.UserPassword(a.Username, a.Password)
	}

	return u
}

// WithURL returns a copy of a pointing to rawURL. Credentials embedded in
// rawURL replace the configured ones.
func (a ACSConfig) WithURL(rawURL string) (ACSConfig, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return a, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return a, fmt.Errorf("%w: unsupported ACS URL scheme %q", ErrConfig, u.Scheme)
	}

	if u.Hostname() == "" {
		return a, fmt.Errorf("%w: ACS URL %q has no host", ErrConfig, rawURL)
	}

	a.Scheme = u.Scheme
	a.Hostname = u.Hostname()
	a.Path = u.Path

	if a.Path == "" {
		a.Path = "/"
	}

	switch port := u.Port(); {
	case port != "":
		p, err := strconv.Atoi(port)
		if err != nil || !validPort(p) {
			return a, fmt.Errorf("%w: invalid ACS URL port %q", ErrConfig, port)
		}

		a.Port = p
	case u.Scheme == "https":
		a.Port = 443
	default:
		a.Port = 80
	}

	if u.User != nil {
		a.Username = u.User.Username()
		a.Password, _ = u.User.Password()
	}

	return a, nil
}

// WithCredentials returns a copy of a authenticating as username.
func (a ACSConfig) WithCredentials(username, password string) ACSConfig {
	a.Username = username
	a.Password = password

	return a
}

// TLSOptions returns the TLS material to use with an https ACS.
func (a ACSConfig) TLSOptions() certutil.ClientOptions {
	return certutil.ClientOptions{
		CertFile:           a.TLS.CertFile,
		KeyFile:            a.TLS.KeyFile,
		CAFile:             a.TLS.CAFile,
		InsecureSkipVerify: a.TLS.InsecureSkipVerify,
	}
}

// rawACSConfig can be considered a helper, accepting the url shorthand next
// to the individual keys.
type rawACSConfig struct {
	plainACSConfig `yaml:",inline"`
	URL            string `yaml:"url"`
}

type plainACSConfig ACSConfig

// UnmarshalYAML implements the yaml.Unmarshaler interface for ACSConfig.
// Keys missing from value keep their current value.
func (a *ACSConfig) UnmarshalYAML(value *yaml.Node) error {
	t := rawACSConfig{plainACSConfig: plainACSConfig(*a)}

	if err := value.Decode(&t); err != nil {
		return err
	}

	res := ACSConfig(t.plainACSConfig)

	if t.URL != "" {
		var err error

		res, err = res.WithURL(t.URL)
		if err != nil {
			return err
		}
	}

	*a = res

	return nil
}

// Device returns the identity reported to the ACS.
func (d DeviceConfig) Device() soap.Device {
	return soap.Device{
		Manufacturer:     d.Manufacturer,
		OUI:              d.OUI,
		ProductClass:     d.ProductClass,
		SerialNumber:     d.SerialNumber,
		HardwareVersion:  d.HardwareVersion,
		SoftwareVersion:  d.SoftwareVersion,
		ProvisioningCode: d.ProvisioningCode,
	}
}
