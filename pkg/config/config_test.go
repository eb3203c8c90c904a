package config

import (
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/google/go-cmp/cmp"
)

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := &Config{
		Schema:    &SchemaConfig{Directories: []string{defaultSchemaDir}},
		Datastore: &DatastoreConfig{Directory: defaultDatastoreDir},
		NACM:      &NACMConfig{Mode: NACMModeInline},
		Cache:     &CacheConfig{Enable: pointer.ToBool(defaultCacheEnable)},
		NETCONF:   &NETCONFServer{SocketPath: defaultSocketPath},
		RESTCONF:  &RESTCONFServer{Address: defaultRESTCONFAddress},
		Metrics:   &MetricsServer{Address: defaultMetricsAddress},
		LogLevel:  defaultLogLevel,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("New(\"\") defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestNACMExternalModeRequiresFile(t *testing.T) {
	c := &Config{NACM: &NACMConfig{Mode: NACMModeExternal}}
	if err := c.validateSetDefaults(); err != nil {
		t.Fatalf("validateSetDefaults: %v", err)
	}
	if c.NACM.Mode != NACMModeInline {
		t.Fatalf("expected fallback to inline mode without a file, got %q", c.NACM.Mode)
	}
}

func TestNACMExternalModeWithFileIsKept(t *testing.T) {
	c := &Config{NACM: &NACMConfig{Mode: NACMModeExternal, File: "/etc/confd/nacm.xml"}}
	if err := c.validateSetDefaults(); err != nil {
		t.Fatalf("validateSetDefaults: %v", err)
	}
	if c.NACM.Mode != NACMModeExternal {
		t.Fatalf("expected external mode to be kept, got %q", c.NACM.Mode)
	}
}
