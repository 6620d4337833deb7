// Package config loads the storage core's configuration file (spec §6):
// a YAML document grouped into sections (engine, memory, cache, threads,
// storage, lsm, btree), with defaults matching the spec's documented
// values and an environment-variable override pass of the shape
// {PREFIX}_{SECTION}_{KEY} uppercased.
//
// Grounded on the pack's general preference for a single typed config
// struct loaded via gopkg.in/yaml.v3 (the teacher repo has no config
// file of its own; this package is new, built directly off spec §6's
// option table).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineSection selects and tunes the active storage engine(s).
type EngineSection struct {
	Default    string `yaml:"default"`
	Strategy   string `yaml:"strategy"`
	MaxEngines int    `yaml:"max_engines"`
}

// MemorySection bounds process-wide memory use.
type MemorySection struct {
	LimitBytes int64 `yaml:"limit_bytes"`
}

// CacheSection configures the cache layer fronting the engines.
type CacheSection struct {
	SizeBytes      int64   `yaml:"size_bytes"`
	Policy         string  `yaml:"policy"`
	DefaultTTLMs   int64   `yaml:"default_ttl_ms"`
	CleanupMs      int64   `yaml:"cleanup_ms"`
	EvictionFactor float64 `yaml:"eviction_factor"`
}

// ThreadsSection sizes the worker and I/O thread pools.
type ThreadsSection struct {
	Worker int `yaml:"worker"`
	IO     int `yaml:"io"`
}

// StorageSection configures durability for on-disk engines.
type StorageSection struct {
	DataDir       string `yaml:"data_dir"`
	EnableWAL     bool   `yaml:"enable_wal"`
	SyncWrites    bool   `yaml:"sync_writes"`
	SyncIntervalS int    `yaml:"sync_interval_s"`
}

// LSMSection configures the LSM-Tree engine.
type LSMSection struct {
	MemtableSize        int64  `yaml:"memtable_size"`
	MaxImmutable         int    `yaml:"max_immutable"`
	Level0FileLimit      int    `yaml:"level0_file_limit"`
	LevelSizeMultiplier  int64  `yaml:"level_size_multiplier"`
	Compression          string `yaml:"compression"`
	BloomBitsPerKey      int    `yaml:"bloom_bits_per_key"`
}

// BTreeSection configures the B+Tree engine.
type BTreeSection struct {
	Order      int  `yaml:"order"`
	CacheNodes int  `yaml:"cache_nodes"`
	Adaptive   bool `yaml:"adaptive"`
}

// Config is the root of the storage core's configuration file.
type Config struct {
	Engine  EngineSection  `yaml:"engine"`
	Memory  MemorySection  `yaml:"memory"`
	Cache   CacheSection   `yaml:"cache"`
	Threads ThreadsSection `yaml:"threads"`
	Storage StorageSection `yaml:"storage"`
	LSM     LSMSection     `yaml:"lsm"`
	BTree   BTreeSection   `yaml:"btree"`
}

// Default returns the configuration with every default value spec §6
// documents.
func Default() Config {
	return Config{
		Engine: EngineSection{Default: "lsm", Strategy: "fixed", MaxEngines: 5},
		Memory: MemorySection{LimitBytes: 256 * 1024 * 1024},
		Cache: CacheSection{
			SizeBytes:      64 * 1024 * 1024,
			Policy:         "lru",
			DefaultTTLMs:   3_600_000,
			CleanupMs:      60_000,
			EvictionFactor: 0.1,
		},
		Threads: ThreadsSection{Worker: 4, IO: 2},
		Storage: StorageSection{
			DataDir:       "./data",
			EnableWAL:     true,
			SyncWrites:    false,
			SyncIntervalS: 5,
		},
		LSM: LSMSection{
			MemtableSize:        4 * 1024 * 1024,
			MaxImmutable:        5,
			Level0FileLimit:     4,
			LevelSizeMultiplier: 10,
			Compression:         "none",
			BloomBitsPerKey:     10,
		},
		BTree: BTreeSection{Order: 100, CacheNodes: 1024, Adaptive: true},
	}
}

// Load reads and parses a YAML configuration file, filling in spec
// defaults for anything the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// envEntry binds one "section.key" path to a setter applied when the
// corresponding {PREFIX}_{SECTION}_{KEY} environment variable is set.
type envEntry struct {
	section, key string
	set          func(cfg *Config, raw string) error
}

func envTable() []envEntry {
	return []envEntry{
		{"engine", "default", func(c *Config, v string) error { c.Engine.Default = v; return nil }},
		{"engine", "strategy", func(c *Config, v string) error { c.Engine.Strategy = v; return nil }},
		{"engine", "max_engines", intSetter(func(c *Config) *int { return &c.Engine.MaxEngines })},
		{"memory", "limit_bytes", int64Setter(func(c *Config) *int64 { return &c.Memory.LimitBytes })},
		{"cache", "size_bytes", int64Setter(func(c *Config) *int64 { return &c.Cache.SizeBytes })},
		{"cache", "policy", func(c *Config, v string) error { c.Cache.Policy = v; return nil }},
		{"cache", "default_ttl_ms", int64Setter(func(c *Config) *int64 { return &c.Cache.DefaultTTLMs })},
		{"cache", "cleanup_ms", int64Setter(func(c *Config) *int64 { return &c.Cache.CleanupMs })},
		{"cache", "eviction_factor", floatSetter(func(c *Config) *float64 { return &c.Cache.EvictionFactor })},
		{"threads", "worker", intSetter(func(c *Config) *int { return &c.Threads.Worker })},
		{"threads", "io", intSetter(func(c *Config) *int { return &c.Threads.IO })},
		{"storage", "data_dir", func(c *Config, v string) error { c.Storage.DataDir = v; return nil }},
		{"storage", "enable_wal", boolSetter(func(c *Config) *bool { return &c.Storage.EnableWAL })},
		{"storage", "sync_writes", boolSetter(func(c *Config) *bool { return &c.Storage.SyncWrites })},
		{"storage", "sync_interval_s", intSetter(func(c *Config) *int { return &c.Storage.SyncIntervalS })},
		{"lsm", "memtable_size", int64Setter(func(c *Config) *int64 { return &c.LSM.MemtableSize })},
		{"lsm", "max_immutable", intSetter(func(c *Config) *int { return &c.LSM.MaxImmutable })},
		{"lsm", "level0_file_limit", intSetter(func(c *Config) *int { return &c.LSM.Level0FileLimit })},
		{"lsm", "level_size_multiplier", int64Setter(func(c *Config) *int64 { return &c.LSM.LevelSizeMultiplier })},
		{"lsm", "compression", func(c *Config, v string) error { c.LSM.Compression = v; return nil }},
		{"lsm", "bloom_bits_per_key", intSetter(func(c *Config) *int { return &c.LSM.BloomBitsPerKey })},
		{"btree", "order", intSetter(func(c *Config) *int { return &c.BTree.Order })},
		{"btree", "cache_nodes", intSetter(func(c *Config) *int { return &c.BTree.CacheNodes })},
		{"btree", "adaptive", boolSetter(func(c *Config) *bool { return &c.BTree.Adaptive })},
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func int64Setter(field func(*Config) *int64) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

// ApplyEnv overlays environment variables of the shape
// {prefix}_{SECTION}_{KEY} (uppercased) onto cfg, returning the result.
// Unset variables leave the corresponding field untouched.
func ApplyEnv(cfg Config, prefix string) (Config, error) {
	for _, e := range envTable() {
		name := strings.ToUpper(prefix + "_" + e.section + "_" + e.key)
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := e.set(&cfg, raw); err != nil {
			return cfg, fmt.Errorf("config: env %s: %w", name, err)
		}
	}
	return cfg, nil
}
