package config

// SchemaConfig names the YANG load directories and the main module to
// resolve the schema graph from (spec.md §6 "YANG load directories, YANG
// main file").
type SchemaConfig struct {
	Directories []string `yaml:"directories,omitempty" json:"directories,omitempty"`
	MainModule  string   `yaml:"main-module,omitempty" json:"main-module,omitempty"`
}

func (s *SchemaConfig) validateSetDefaults() error {
	if len(s.Directories) == 0 {
		s.Directories = []string{defaultSchemaDir}
	}
	for i, d := range s.Directories {
		ed, err := expandPath(d)
		if err != nil {
			return err
		}
		s.Directories[i] = ed
	}
	return nil
}
