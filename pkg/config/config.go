// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads runtime configuration. Precedence, lowest to
// highest: built-in defaults, the YAML overlay file, environment
// variables. Env names mirror the YAML keys in upper snake case with
// the section as prefix (kafka.group_id -> KAFKA_GROUP_ID).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omninode/omnintel/pkg/writer"
)

// Kafka names the log brokers and this instance's consumer identity.
// Env and Service feed topic construction ({env}.{service}.…).
type Kafka struct {
	BootstrapServers []string `yaml:"bootstrap_servers"`
	GroupID          string   `yaml:"group_id"`
	Env              string   `yaml:"env"`
	Service          string   `yaml:"service"`
}

// HTTPClient tunes the shared outbound HTTP pool.
type HTTPClient struct {
	MaxConnections          int           `yaml:"max_connections"`
	MaxKeepaliveConnections int           `yaml:"max_keepalive_connections"`
	ConnectTimeout          time.Duration `yaml:"connect_timeout"`
	ReadTimeout             time.Duration `yaml:"read_timeout"`
	MaxAttempts             int           `yaml:"max_attempts"`
}

// Stores holds the collaborator endpoints.
type Stores struct {
	PostgresDSN      string `yaml:"postgres_dsn"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
	GraphURL         string `yaml:"graph_url"`
	// IntelligenceURL names the entity/quality service. Empty selects
	// the built-in heuristic extractor.
	IntelligenceURL string `yaml:"intelligence_url"`
}

// Embedding configures the embedding provider and producer pacing.
type Embedding struct {
	ModelURL          string        `yaml:"model_url"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	InterRequestDelay time.Duration `yaml:"inter_request_delay"`
	BatchSize         int           `yaml:"batch_size"`
	MaxFileBytes      int           `yaml:"max_file_bytes"`
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkOverlap      int           `yaml:"chunk_overlap"`
}

// Host bounds the consume loop.
type Host struct {
	MaxInFlight    int           `yaml:"max_in_flight"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// Indexer bounds document fan-out.
type Indexer struct {
	MaxConcurrentDocuments int           `yaml:"max_concurrent_documents"`
	JoinTimeout            time.Duration `yaml:"join_timeout"`
	DefaultProject         string        `yaml:"default_project"`
}

// Crawler controls repository walks.
type Crawler struct {
	BatchSize    int      `yaml:"batch_size"`
	ExcludeGlobs []string `yaml:"exclude_globs"`
	FilePatterns []string `yaml:"file_patterns"`
}

// Bootstrap carries startup-time data such as tier classification rules.
type Bootstrap struct {
	TierRules []writer.TierRule `yaml:"tier_rules"`
}

// Ops configures the health/metrics listener.
type Ops struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Config struct {
	Kafka      Kafka      `yaml:"kafka"`
	HTTPClient HTTPClient `yaml:"http_client"`
	Stores     Stores     `yaml:"stores"`
	Embedding  Embedding  `yaml:"embedding"`
	Host       Host       `yaml:"host"`
	Indexer    Indexer    `yaml:"indexer"`
	Crawler    Crawler    `yaml:"crawler"`
	Bootstrap  Bootstrap  `yaml:"bootstrap"`
	Ops        Ops        `yaml:"ops"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Kafka: Kafka{
			BootstrapServers: []string{"localhost:9092"},
			GroupID:          "omnintel-core",
			Env:              "dev",
			Service:          "archon-intelligence",
		},
		HTTPClient: HTTPClient{
			MaxConnections:          100,
			MaxKeepaliveConnections: 20,
			ConnectTimeout:          5 * time.Second,
			ReadTimeout:             30 * time.Second,
			MaxAttempts:             3,
		},
		Stores: Stores{
			PostgresDSN:      "postgres://omnintel@localhost:5432/omnintel",
			QdrantURL:        "http://localhost:6333",
			QdrantCollection: "context_items",
			GraphURL:         "http://localhost:7474",
		},
		Embedding: Embedding{
			ModelURL:          "http://localhost:11434/v1",
			Model:             "nomic-embed-text",
			MaxConcurrent:     5,
			InterRequestDelay: 20 * time.Millisecond,
			BatchSize:         25,
			MaxFileBytes:      2 << 20,
			ChunkSize:         1000,
			ChunkOverlap:      100,
		},
		Host: Host{
			MaxInFlight:    10,
			HandlerTimeout: 30 * time.Second,
			ShutdownGrace:  10 * time.Second,
		},
		Indexer: Indexer{
			MaxConcurrentDocuments: 4,
			JoinTimeout:            30 * time.Second,
			DefaultProject:         "default",
		},
		Crawler: Crawler{
			BatchSize: 50,
		},
		Ops: Ops{ListenAddr: ":8080"},
	}
}

// Load builds the effective configuration. path names the YAML overlay;
// an empty path skips the overlay, a named file that does not exist is
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error

	envList("KAFKA_BOOTSTRAP_SERVERS", &c.Kafka.BootstrapServers)
	envStr("KAFKA_GROUP_ID", &c.Kafka.GroupID)
	envStr("KAFKA_ENV", &c.Kafka.Env)
	envStr("KAFKA_SERVICE", &c.Kafka.Service)

	err = firstErr(err, envInt("HTTP_CLIENT_MAX_CONNECTIONS", &c.HTTPClient.MaxConnections))
	err = firstErr(err, envInt("HTTP_CLIENT_MAX_KEEPALIVE_CONNECTIONS", &c.HTTPClient.MaxKeepaliveConnections))
	err = firstErr(err, envDur("HTTP_CLIENT_CONNECT_TIMEOUT", &c.HTTPClient.ConnectTimeout))
	err = firstErr(err, envDur("HTTP_CLIENT_READ_TIMEOUT", &c.HTTPClient.ReadTimeout))
	err = firstErr(err, envInt("HTTP_CLIENT_MAX_ATTEMPTS", &c.HTTPClient.MaxAttempts))

	envStr("STORES_POSTGRES_DSN", &c.Stores.PostgresDSN)
	envStr("STORES_QDRANT_URL", &c.Stores.QdrantURL)
	envStr("STORES_QDRANT_COLLECTION", &c.Stores.QdrantCollection)
	envStr("STORES_GRAPH_URL", &c.Stores.GraphURL)
	envStr("STORES_INTELLIGENCE_URL", &c.Stores.IntelligenceURL)

	envStr("EMBEDDING_MODEL_URL", &c.Embedding.ModelURL)
	envStr("EMBEDDING_MODEL", &c.Embedding.Model)
	envStr("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	err = firstErr(err, envInt("EMBEDDING_MAX_CONCURRENT", &c.Embedding.MaxConcurrent))
	err = firstErr(err, envDur("EMBEDDING_INTER_REQUEST_DELAY", &c.Embedding.InterRequestDelay))
	err = firstErr(err, envInt("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize))
	err = firstErr(err, envInt("EMBEDDING_MAX_FILE_BYTES", &c.Embedding.MaxFileBytes))
	err = firstErr(err, envInt("EMBEDDING_CHUNK_SIZE", &c.Embedding.ChunkSize))
	err = firstErr(err, envInt("EMBEDDING_CHUNK_OVERLAP", &c.Embedding.ChunkOverlap))

	err = firstErr(err, envInt("HOST_MAX_IN_FLIGHT", &c.Host.MaxInFlight))
	err = firstErr(err, envDur("HOST_HANDLER_TIMEOUT", &c.Host.HandlerTimeout))
	err = firstErr(err, envDur("HOST_SHUTDOWN_GRACE", &c.Host.ShutdownGrace))

	err = firstErr(err, envInt("INDEXER_MAX_CONCURRENT_DOCUMENTS", &c.Indexer.MaxConcurrentDocuments))
	err = firstErr(err, envDur("INDEXER_JOIN_TIMEOUT", &c.Indexer.JoinTimeout))
	envStr("INDEXER_DEFAULT_PROJECT", &c.Indexer.DefaultProject)

	err = firstErr(err, envInt("CRAWLER_BATCH_SIZE", &c.Crawler.BatchSize))
	envList("CRAWLER_EXCLUDE_GLOBS", &c.Crawler.ExcludeGlobs)
	envList("CRAWLER_FILE_PATTERNS", &c.Crawler.FilePatterns)

	envStr("OPS_LISTEN_ADDR", &c.Ops.ListenAddr)

	return err
}

func envStr(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func envList(name string, dst *[]string) {
	if v, ok := os.LookupEnv(name); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDur(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
