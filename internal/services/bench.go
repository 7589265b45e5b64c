package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dawask/rag-backend/internal/logger"
)

// QueryBenchConfig is one A/B knob set for the query path.
type QueryBenchConfig struct {
	TopK        int    `yaml:"top_k"`
	TopN        int    `yaml:"top_n"`
	PromptStyle string `yaml:"prompt_style"`
}

// IngestBenchConfig is one A/B knob set for the ingestion path. Mode
// "docling_auto" keeps the layout chunker's own budget; "recursive" triggers
// the character splitter with the given token sizes.
type IngestBenchConfig struct {
	Mode      string `yaml:"mode"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

const (
	IngestModeDoclingAuto = "docling_auto"
	IngestModeRecursive   = "recursive"
)

// The benchmark grid. These entries are the declared experiment set and must
// stay as-is; per-run tweaks go through BENCH_CONFIG_FILE instead.
var defaultQueryBenchConfigs = map[string]QueryBenchConfig{
	"01": {TopK: 30, TopN: 15, PromptStyle: "light"},
	"02": {TopK: 30, TopN: 15, PromptStyle: "verbose"},
	"03": {TopK: 50, TopN: 15, PromptStyle: "light"},
	"04": {TopK: 50, TopN: 20, PromptStyle: "light"},
	"05": {TopK: 30, TopN: 15, PromptStyle: "verbose"},
	"06": {TopK: 80, TopN: 13, PromptStyle: "verbose"},
	"07": {TopK: 50, TopN: 15, PromptStyle: "reasoning"},
	"08": {TopK: 80, TopN: 13, PromptStyle: "verbose"},
	"09": {TopK: 40, TopN: 15, PromptStyle: "light"},
	"10": {TopK: 50, TopN: 15, PromptStyle: "reasoning"},
	"11": {TopK: 60, TopN: 15, PromptStyle: "verbose"},
}

var defaultIngestBenchConfigs = map[string]IngestBenchConfig{
	"01": {Mode: IngestModeDoclingAuto},
	"02": {Mode: IngestModeDoclingAuto},
	"03": {Mode: IngestModeDoclingAuto},
	"07": {Mode: IngestModeDoclingAuto},
	"08": {Mode: IngestModeDoclingAuto},
	"04": {Mode: IngestModeRecursive, ChunkSize: 1000, Overlap: 100},
	"05": {Mode: IngestModeRecursive, ChunkSize: 1500, Overlap: 150},
	"09": {Mode: IngestModeRecursive, ChunkSize: 1000, Overlap: 100},
	"10": {Mode: IngestModeRecursive, ChunkSize: 1500, Overlap: 150},
	"11": {Mode: IngestModeRecursive, ChunkSize: 1500, Overlap: 150},
	"06": {Mode: IngestModeRecursive, ChunkSize: 2500, Overlap: 250},
}

type benchOverrideFile struct {
	Query  map[string]QueryBenchConfig  `yaml:"query"`
	Ingest map[string]IngestBenchConfig `yaml:"ingest"`
}

// BenchConfigs resolves benchmark identifiers, optionally overlaid by the
// YAML file named in BENCH_CONFIG_FILE.
type BenchConfigs struct {
	log    *logger.Logger
	query  map[string]QueryBenchConfig
	ingest map[string]IngestBenchConfig
}

func NewBenchConfigs(log *logger.Logger) *BenchConfigs {
	bc := &BenchConfigs{
		log:    log.With("service", "BenchConfigs"),
		query:  map[string]QueryBenchConfig{},
		ingest: map[string]IngestBenchConfig{},
	}
	for k, v := range defaultQueryBenchConfigs {
		bc.query[k] = v
	}
	for k, v := range defaultIngestBenchConfigs {
		bc.ingest[k] = v
	}

	path := strings.TrimSpace(os.Getenv("BENCH_CONFIG_FILE"))
	if path == "" {
		return bc
	}
	if err := bc.loadOverride(path); err != nil {
		bc.log.Warn("Ignoring benchmark override file", "path", path, "error", err.Error())
	}
	return bc
}

func (bc *BenchConfigs) loadOverride(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read override: %w", err)
	}
	var override benchOverrideFile
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return fmt.Errorf("parse override: %w", err)
	}
	for id, cfg := range override.Query {
		bc.query[id] = cfg
	}
	for id, cfg := range override.Ingest {
		bc.ingest[id] = cfg
	}
	bc.log.Info("Benchmark overrides loaded",
		"path", path,
		"query_overrides", len(override.Query),
		"ingest_overrides", len(override.Ingest),
	)
	return nil
}

// Query resolves a query config id, falling back to "01" for unknown ids.
func (bc *BenchConfigs) Query(configID string) QueryBenchConfig {
	if cfg, ok := bc.query[configID]; ok {
		return cfg
	}
	return bc.query["01"]
}

// Ingest resolves an ingest config id, falling back to "01" for unknown ids.
func (bc *BenchConfigs) Ingest(configID string) IngestBenchConfig {
	if cfg, ok := bc.ingest[configID]; ok {
		return cfg
	}
	return bc.ingest["01"]
}
