// Package config provides typed, atomically-swappable configuration for the
// gateway: per-database back-end wiring, BIB-1 attribute maps, record-syntax
// field specs, and the ambient logging/metrics/admin blocks.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResultSetIDPolicy controls how a database's RSID node re-uses a result set.
type ResultSetIDPolicy string

const (
	PolicyFallback ResultSetIDPolicy = "fallback"
	PolicyID       ResultSetIDPolicy = "id"
	PolicySearch   ResultSetIDPolicy = "search"
)

// QueryType selects the compiler dialect used against a database's back end.
type QueryType string

const (
	QueryTypeCQL  QueryType = "cql"
	QueryTypeSolr QueryType = "solr"
	// QueryTypePQF is implied by an empty/absent querytype: Type-1 passthrough.
	QueryTypePQF QueryType = ""
)

// GatewayConfig is the process-wide, reload-on-Init configuration.
type GatewayConfig struct {
	Databases      map[string]*DatabaseConfig `yaml:"database"`
	Authentication string                     `yaml:"authentication"`
	Search         *SearchConfig              `yaml:"search"`
	Logging        LoggingConfig              `yaml:"logging"`
	Metrics        MetricsConfig              `yaml:"metrics"`
	Admin          AdminConfig                `yaml:"admin"`
}

// SearchConfig is the inheritable search block: dialect and BIB-1 attribute map.
type SearchConfig struct {
	QueryType QueryType      `yaml:"querytype"`
	Map       map[int]MapEntry `yaml:"map"`
}

// MapEntry names the target index for a BIB-1 Use attribute value.
type MapEntry struct {
	Index string `yaml:"index"`
}

// SchemaEntry describes a requested-schema-name mapping for Fetch.
type SchemaEntry struct {
	SRU      string `yaml:"sru"`
	Encoding string `yaml:"encoding"`
	Format   string `yaml:"format"`
}

// FieldSpec is one {xpath, content} record-conversion rule.
type FieldSpec struct {
	XPath   string `yaml:"xpath"`
	Content string `yaml:"content"`
}

// OptionValue is a ZOOM pass-through option; its YAML shape wraps a leaf value
// in a {content: ...} object, matching the original XML config's leaf wrapper.
type OptionValue struct {
	Content string `yaml:"content"`
}

// DatabaseConfig is the per-database configuration named in spec.md section 3.
type DatabaseConfig struct {
	ZURL               string                 `yaml:"zurl"`
	Search             SearchConfig           `yaml:"search"`
	NoNamedResultSets  bool                   `yaml:"nonamedresultsets"`
	ResultSetID        ResultSetIDPolicy      `yaml:"resultsetid"`
	Schema             map[string]SchemaEntry `yaml:"schema"`
	Charset            string                 `yaml:"charset"`
	Option             map[string]OptionValue `yaml:"option"`
	USMARCRecord       []FieldSpec            `yaml:"usmarc-record"`
	GRS1Record         []FieldSpec            `yaml:"grs1-record"`
	SUTRSRecord        []FieldSpec            `yaml:"sutrs-record"`
	XMLRecord          []FieldSpec            `yaml:"xml-record"`
}

// ExplicitAvailability reports whether option.explicit_availability is set,
// enabling the MARC patch rule described in spec.md section 3.
func (d *DatabaseConfig) ExplicitAvailability() bool {
	v, ok := d.Option["explicit_availability"]
	return ok && (v.Content == "" || v.Content == "1" || v.Content == "true")
}

// LoggingConfig controls the ambient slog setup: level/format plus optional
// syslog and rotating-file sinks.
type LoggingConfig struct {
	Level  string       `yaml:"level"`
	Format string       `yaml:"format"` // json, text
	Syslog SyslogConfig `yaml:"syslog"`
	File   FileLogConfig `yaml:"file"`
}

// SyslogConfig configures an optional RackSec/srslog sink.
type SyslogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Network string `yaml:"network"` // "" (local), "udp", "tcp"
	Addr    string `yaml:"addr"`
	Tag     string `yaml:"tag"`
}

// FileLogConfig configures an optional lumberjack-rotated file sink.
type FileLogConfig struct {
	Enabled    bool `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
}

// MetricsConfig toggles the Prometheus counters/histograms.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AdminConfig configures the optional chi-mounted ops HTTP surface.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RecordSyntaxes supported by the gateway's record converter.
const (
	SyntaxXML   = "xml"
	SyntaxUSMARC = "usmarc"
	SyntaxGRS1  = "grs1"
	SyntaxSUTRS = "sutrs"
)

// DefaultConfig returns a configuration with sane ambient defaults. It is the
// base onto which a loaded file is unmarshaled.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Databases: map[string]*DatabaseConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{Enabled: true},
		Admin:   AdminConfig{Enabled: false, Addr: "127.0.0.1:9090"},
	}
}

// Load reads a YAML gateway configuration file, expanding environment
// variables, and validates the per-database shape. An empty path yields the
// default (empty-database) configuration, useful for `cfg:` virtual-database-
// only deployments.
func Load(path string) (*GatewayConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 -- path is an operator-supplied command-line argument.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Databases == nil {
		cfg.Databases = map[string]*DatabaseConfig{}
	}
	for name, db := range cfg.Databases {
		if db.Search.QueryType == "" && cfg.Search != nil {
			db.Search.QueryType = cfg.Search.QueryType
		}
		if db.Search.Map == nil && cfg.Search != nil {
			db.Search.Map = cfg.Search.Map
		}
		if db.ResultSetID == "" {
			db.ResultSetID = PolicyFallback
		}
		if db.ZURL == "" {
			return nil, fmt.Errorf("database %q: zurl is required", name)
		}
	}
	return cfg, nil
}

// SupportedSyntaxes reports, in sorted order, which record syntaxes this
// database has a field spec for. XML is always supported (passthrough).
func (d *DatabaseConfig) SupportedSyntaxes() []string {
	out := []string{SyntaxXML}
	if len(d.USMARCRecord) > 0 {
		out = append(out, SyntaxUSMARC)
	}
	if len(d.GRS1Record) > 0 {
		out = append(out, SyntaxGRS1)
	}
	if len(d.SUTRSRecord) > 0 {
		out = append(out, SyntaxSUTRS)
	}
	sort.Strings(out)
	return out
}

// FieldSpecFor returns the field spec list configured for a record syntax,
// and whether one is configured at all (XML never needs one).
func (d *DatabaseConfig) FieldSpecFor(syntax string) ([]FieldSpec, bool) {
	switch syntax {
	case SyntaxXML:
		return d.XMLRecord, true
	case SyntaxUSMARC:
		return d.USMARCRecord, len(d.USMARCRecord) > 0
	case SyntaxGRS1:
		return d.GRS1Record, len(d.GRS1Record) > 0
	case SyntaxSUTRS:
		return d.SUTRSRecord, len(d.SUTRSRecord) > 0
	default:
		return nil, false
	}
}

// ParseVirtualDatabase parses a `cfg:k=v&k=v&...` database name into an
// ad-hoc DatabaseConfig, per spec.md section 4.2. The global search block,
// if any, is inherited.
func ParseVirtualDatabase(name string, global *SearchConfig) (*DatabaseConfig, error) {
	raw := strings.TrimPrefix(name, "cfg:")
	db := &DatabaseConfig{
		Option:      map[string]OptionValue{},
		ResultSetID: PolicyFallback,
	}
	if global != nil {
		db.Search = *global
	}
	// defaults per spec
	db.Option["timeout"] = OptionValue{Content: "120"}
	db.Option["sru"] = OptionValue{Content: "get"}

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		k := kv[0]
		v := ""
		if len(kv) == 2 {
			v = kv[1]
		}
		switch k {
		case "address":
			db.ZURL = v
		default:
			db.Option[k] = OptionValue{Content: v}
		}
	}
	if db.ZURL == "" {
		return nil, fmt.Errorf("missing address in %s", name)
	}
	return db, nil
}
