package config

const (
	defaultSchemaDir    = "./yang"
	defaultDatastoreDir = "./data"
	defaultSocketPath   = "/var/run/confd/confd.sock"

	defaultCacheEnable = true

	defaultRESTCONFAddress = ":8443"
	defaultMetricsAddress  = ":9100"

	defaultLogLevel = "info"
)
