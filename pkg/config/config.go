// Package config holds the engine's startup configuration (spec.md §6
// "Configuration"): YANG load directories, the datastore directory, the
// NETCONF socket path, NACM mode, and the front-end listen addresses.
// Shaped after the teacher's pkg/config/config.go: a yaml.v2-unmarshaled
// struct with a validateSetDefaults method per sub-section.
package config

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/AlekSi/pointer"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
)

// Config is the top-level configuration for the confd engine binary.
type Config struct {
	Schema    *SchemaConfig    `yaml:"schema,omitempty" json:"schema,omitempty"`
	Datastore *DatastoreConfig `yaml:"datastore,omitempty" json:"datastore,omitempty"`
	NACM      *NACMConfig      `yaml:"nacm,omitempty" json:"nacm,omitempty"`
	Cache     *CacheConfig     `yaml:"cache,omitempty" json:"cache,omitempty"`
	NETCONF   *NETCONFServer   `yaml:"netconf,omitempty" json:"netconf,omitempty"`
	RESTCONF  *RESTCONFServer  `yaml:"restconf,omitempty" json:"restconf,omitempty"`
	Metrics   *MetricsServer   `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	LogLevel  string           `yaml:"log-level,omitempty" json:"log-level,omitempty"`
}

// TLS is the shared certificate configuration for every listener that
// terminates TLS (RESTCONF HTTPS, the metrics endpoint).
type TLS struct {
	CA         string `yaml:"ca,omitempty" json:"ca,omitempty"`
	Cert       string `yaml:"cert,omitempty" json:"cert,omitempty"`
	Key        string `yaml:"key,omitempty" json:"key,omitempty"`
	SkipVerify bool   `yaml:"skip-verify,omitempty" json:"skip-verify,omitempty"`
}

// New loads configuration from file (yaml), or returns an all-defaults
// Config when file is empty.
func New(file string) (*Config, error) {
	c := new(Config)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", file, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", file, err)
		}
	}
	if err := c.validateSetDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validateSetDefaults() error {
	if c.Schema == nil {
		c.Schema = &SchemaConfig{}
	}
	if err := c.Schema.validateSetDefaults(); err != nil {
		return err
	}
	if c.Datastore == nil {
		c.Datastore = &DatastoreConfig{}
	}
	if err := c.Datastore.validateSetDefaults(); err != nil {
		return err
	}
	if c.NACM == nil {
		c.NACM = &NACMConfig{}
	}
	if err := c.NACM.validateSetDefaults(); err != nil {
		return err
	}
	if c.Cache == nil {
		c.Cache = &CacheConfig{Enable: pointer.ToBool(defaultCacheEnable)}
	}
	if err := c.Cache.validateSetDefaults(); err != nil {
		return err
	}
	if c.NETCONF == nil {
		c.NETCONF = &NETCONFServer{}
	}
	if err := c.NETCONF.validateSetDefaults(); err != nil {
		return err
	}
	if c.RESTCONF == nil {
		c.RESTCONF = &RESTCONFServer{}
	}
	if err := c.RESTCONF.validateSetDefaults(); err != nil {
		return err
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsServer{}
	}
	if err := c.Metrics.validateSetDefaults(); err != nil {
		return err
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	return nil
}

// NewConfig builds a *tls.Config for t, using a certwatcher for live
// reload of Cert/Key, ported verbatim from the teacher's TLS.NewConfig.
func (t *TLS) NewConfig(ctx context.Context) (*tls.Config, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: t.SkipVerify}
	if t.CA != "" {
		ca, err := os.ReadFile(t.CA)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		if len(ca) != 0 {
			caCertPool := x509.NewCertPool()
			caCertPool.AppendCertsFromPEM(ca)
			tlsCfg.RootCAs = caCertPool
		}
	}
	if t.Cert != "" && t.Key != "" {
		certWatcher, err := certwatcher.New(t.Cert, t.Key)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := certWatcher.Start(ctx); err != nil {
				log.Errorf("certificate watcher error: %v", err)
			}
		}()
		tlsCfg.GetCertificate = certWatcher.GetCertificate
	}
	return tlsCfg, nil
}

// expandPath applies `~`-expansion via go-homedir, spec.md §6's YANG
// directories/datastore directory/socket path all needing it.
func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	return homedir.Expand(p)
}
