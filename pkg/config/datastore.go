package config

// DatastoreConfig names the directory the four named datastore files
// (spec.md §3/§6) are persisted under.
type DatastoreConfig struct {
	Directory string `yaml:"directory,omitempty" json:"directory,omitempty"`
}

func (d *DatastoreConfig) validateSetDefaults() error {
	if d.Directory == "" {
		d.Directory = defaultDatastoreDir
	}
	ed, err := expandPath(d.Directory)
	if err != nil {
		return err
	}
	d.Directory = ed
	return nil
}

// NACMConfig selects NACM's configuration source (spec.md §6 "NACM.
// Either stored inline in running ... or loaded from an external file
// ... controlled by a configuration option").
type NACMConfig struct {
	// Mode is "inline" (default) or "external".
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

func (n *NACMConfig) validateSetDefaults() error {
	if n.Mode == "" {
		n.Mode = NACMModeInline
	}
	if n.Mode == NACMModeExternal && n.File == "" {
		n.Mode = NACMModeInline
	}
	if n.File != "" {
		ef, err := expandPath(n.File)
		if err != nil {
			return err
		}
		n.File = ef
	}
	return nil
}

const (
	NACMModeInline   = "inline"
	NACMModeExternal = "external"
)

// CacheConfig enables/disables the schema-validated in-memory state-data
// cache spec.md §6 names as a configuration option ("cache enable").
type CacheConfig struct {
	Enable *bool `yaml:"enable,omitempty" json:"enable,omitempty"`
}

func (c *CacheConfig) validateSetDefaults() error {
	if c.Enable == nil {
		v := defaultCacheEnable
		c.Enable = &v
	}
	return nil
}

// NETCONFServer is the NETCONF front-end's Unix-domain socket (spec.md
// §6 "NETCONF 1.0/1.1 ... on a local UNIX-domain socket").
type NETCONFServer struct {
	SocketPath string `yaml:"socket-path,omitempty" json:"socket-path,omitempty"`
}

func (n *NETCONFServer) validateSetDefaults() error {
	if n.SocketPath == "" {
		n.SocketPath = defaultSocketPath
	}
	ep, err := expandPath(n.SocketPath)
	if err != nil {
		return err
	}
	n.SocketPath = ep
	return nil
}

// RESTCONFServer is the RESTCONF HTTP front-end (spec.md §6 "RESTCONF ...
// via a side process that translates HTTP to the same internal RPC set").
type RESTCONFServer struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	TLS     *TLS   `yaml:"tls,omitempty" json:"tls,omitempty"`
}

func (r *RESTCONFServer) validateSetDefaults() error {
	if r.Address == "" {
		r.Address = defaultRESTCONFAddress
	}
	return nil
}

// MetricsServer is the Prometheus /metrics endpoint.
type MetricsServer struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	TLS     *TLS   `yaml:"tls,omitempty" json:"tls,omitempty"`
}

func (m *MetricsServer) validateSetDefaults() error {
	if m.Address == "" {
		m.Address = defaultMetricsAddress
	}
	return nil
}
