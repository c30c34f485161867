package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

// Deployment environments
const (
	EnvProd = "prod"
	EnvDev  = "dev"
	EnvTest = "test"
)

// Store backends
const (
	StoreNeo4j  = "neo4j"
	StoreMemory = "memory"
)

// Config is the complete service configuration. It is loaded once at
// startup and passed down; nothing re-reads it afterwards.
type Config struct {
	App         AppConfig         `yaml:"app" envconfig:"APP"`
	Log         LogConfig         `yaml:"log" envconfig:"LOG"`
	API         APIConfig         `yaml:"api" envconfig:"API"`
	NATS        NATSConfig        `yaml:"nats" envconfig:"NATS"`
	Neo4j       Neo4jConfig       `yaml:"neo4j" envconfig:"NEO4J"`
	Consumption ConsumptionConfig `yaml:"amqp" envconfig:"AMQP"`
	Publisher   PublisherConfig   `yaml:"publisher" envconfig:"PUBLISHER"`
	Identifiers IdentifiersConfig `yaml:"identifiers" envconfig:"IDENTIFIERS"`
	Search      SearchConfig      `yaml:"search" envconfig:"SEARCH"`

	// Harvesters requested in publication retrieval tasks
	Harvesters []string `yaml:"harvesters" envconfig:"HARVESTERS"`

	Streams []StreamConfig `yaml:"streams" ignored:"true"`
	Topics  []TopicConfig  `yaml:"topics" ignored:"true"`
}

// AppConfig identifies the deployment
type AppConfig struct {
	Env   string `yaml:"env" envconfig:"ENV"`
	Store string `yaml:"store" envconfig:"STORE"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// APIConfig configures the HTTP surface
type APIConfig struct {
	Addr    string `yaml:"addr" envconfig:"ADDR"`
	Prefix  string `yaml:"prefix" envconfig:"PREFIX"`
	Version string `yaml:"version" envconfig:"VERSION"`
}

// BasePath returns the route prefix, e.g. /api/v0
func (a APIConfig) BasePath() string {
	return strings.TrimRight(a.Prefix, "/") + "/" + strings.Trim(a.Version, "/")
}

// NATSConfig configures the broker connection
type NATSConfig struct {
	URL              string        `yaml:"url" envconfig:"URL"`
	Username         string        `yaml:"username" envconfig:"USERNAME"`
	Password         string        `yaml:"password" envconfig:"PASSWORD"`
	Token            string        `yaml:"token" envconfig:"TOKEN"`
	ConnectRetryWait time.Duration `yaml:"connect_retry_wait" envconfig:"CONNECT_RETRY_WAIT"`
}

// Neo4jConfig configures the graph database
type Neo4jConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	User     string `yaml:"user" envconfig:"USER"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Edition  string `yaml:"edition" envconfig:"EDITION"`
}

// ConsumptionConfig holds the per-topic queueing and delivery settings.
// Keys keep their historical amqp names.
type ConsumptionConfig struct {
	QueueCapacity      int           `yaml:"queue_capacity" envconfig:"QUEUE_CAPACITY"`
	TaskParallelism    int           `yaml:"task_parallelism" envconfig:"TASK_PARALLELISM"`
	Prefetch           int           `yaml:"prefetch" envconfig:"PREFETCH"`
	AckTimeout         time.Duration `yaml:"consumer_ack_timeout" envconfig:"CONSUMER_ACK_TIMEOUT"`
	WaitBeforeShutdown time.Duration `yaml:"wait_before_shutdown" envconfig:"WAIT_BEFORE_SHUTDOWN"`
	MaxDeliver         int           `yaml:"max_deliver" envconfig:"MAX_DELIVER"`
	DeadLetterPrefix   string        `yaml:"dead_letter_prefix" envconfig:"DEAD_LETTER_PREFIX"`
}

// PublisherConfig configures outbound messages
type PublisherConfig struct {
	Stream                      string  `yaml:"stream" envconfig:"STREAM"`
	PublicationRetrievalSubject string  `yaml:"publication_retrieval_routing_key" envconfig:"PUBLICATION_RETRIEVAL_ROUTING_KEY"`
	Rate                        float64 `yaml:"rate" envconfig:"RATE"`
	Burst                       int     `yaml:"burst" envconfig:"BURST"`
	Workers                     int     `yaml:"workers" envconfig:"WORKERS"`
	QueueSize                   int     `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// IdentifiersConfig holds the uid priority order per agent kind
type IdentifiersConfig struct {
	People     []string `yaml:"people" envconfig:"PEOPLE"`
	Structures []string `yaml:"structures" envconfig:"STRUCTURES"`
}

// SearchConfig configures the source record index
type SearchConfig struct {
	Enabled            bool     `yaml:"enabled" envconfig:"ENABLED"`
	Addresses          []string `yaml:"addresses" envconfig:"ADDRESSES"`
	User               string   `yaml:"user" envconfig:"USER"`
	Password           string   `yaml:"password" envconfig:"PASSWORD"`
	SourceRecordsIndex string   `yaml:"source_records_index" envconfig:"SOURCE_RECORDS_INDEX"`
	Workers            int      `yaml:"workers" envconfig:"WORKERS"`
	QueueSize          int      `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// StreamConfig declares a JetStream stream, the counterpart of an exchange
type StreamConfig struct {
	Name     string   `yaml:"name"`
	Subjects []string `yaml:"subjects"`
}

// TopicConfig binds a topic to its stream, durable consumer and subject filter
type TopicConfig struct {
	Name     string `yaml:"name"`
	Stream   string `yaml:"stream"`
	Consumer string `yaml:"consumer"`
	Subject  string `yaml:"subject"`
}

// Topic returns the configuration of a named topic
func (c *Config) Topic(name string) (TopicConfig, bool) {
	for _, t := range c.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return TopicConfig{}, false
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		App: AppConfig{Env: EnvDev, Store: StoreNeo4j},
		Log: LogConfig{Level: "info", Format: "json"},
		API: APIConfig{Addr: ":8001", Prefix: "/api", Version: "v0"},
		NATS: NATSConfig{
			URL:              "nats://localhost:4222",
			ConnectRetryWait: time.Second,
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Password: "password",
			Edition:  "community",
		},
		Consumption: ConsumptionConfig{
			QueueCapacity:      10000,
			TaskParallelism:    50,
			Prefetch:           50,
			AckTimeout:         43200000 * time.Millisecond,
			WaitBeforeShutdown: 30 * time.Second,
			MaxDeliver:         20,
			DeadLetterPrefix:   "ikg.deadletter",
		},
		Publisher: PublisherConfig{
			Stream:                      "tasks",
			PublicationRetrievalSubject: "task.entity.references.retrieval",
			Rate:                        100,
			Burst:                       20,
			Workers:                     2,
			QueueSize:                   1000,
		},
		Identifiers: IdentifiersConfig{
			People:     []string{"local", "orcid", "idref"},
			Structures: []string{"local", "idref", "ror"},
		},
		Search: SearchConfig{
			Addresses:          []string{"http://localhost:9200"},
			SourceRecordsIndex: "source_records",
			Workers:            2,
			QueueSize:          1000,
		},
		Harvesters: []string{"idref", "scanr", "hal", "openalex", "scopus"},
		Streams: []StreamConfig{
			{Name: "directory", Subjects: []string{"event.people.>", "event.structures.>"}},
			{Name: "publications", Subjects: []string{"event.references.>"}},
			{Name: "tasks", Subjects: []string{"task.>"}},
			{Name: "deadletter", Subjects: []string{"ikg.deadletter.>"}},
		},
		Topics: []TopicConfig{
			{Name: "people", Stream: "directory", Consumer: "crisalid-ikg-people", Subject: "event.people.person.*"},
			{Name: "publications", Stream: "publications", Consumer: "crisalid-ikg-publications", Subject: "event.references.reference.*"},
			{Name: "structures", Stream: "directory", Consumer: "crisalid-ikg-structures", Subject: "event.structures.structure.*"},
		},
	}
}

// Loader loads configuration from defaults, an optional YAML file, an
// optional dotenv file and the process environment, in that order.
type Loader struct {
	path      string
	dotenv    string
	envPrefix string
}

// NewLoader creates a loader reading path (may be empty) and .env
func NewLoader(path string) *Loader {
	return &Loader{
		path:      path,
		dotenv:    ".env",
		envPrefix: "IKG",
	}
}

// WithDotenv overrides the dotenv file, "" disables it
func (l *Loader) WithDotenv(path string) *Loader {
	l.dotenv = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds and validates the configuration
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("read %s", l.path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("parse %s", l.path))
		}
	}

	if l.dotenv != "" {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(l.dotenv); err != nil && !os.IsNotExist(err) {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("read %s", l.dotenv))
		}
	}

	if err := envconfig.Process(l.envPrefix, cfg); err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration with the default loader settings
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

var (
	personIdentifierTypes       = []string{"local", "orcid", "idref", "id_hal_s", "id_hal_i", "scopus_eid"}
	organizationIdentifierTypes = []string{"local", "idref", "ror", "rnsr"}
	knownTopics                 = []string{"people", "publications", "structures"}
)

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapFatal(fmt.Errorf(format, args...), "Config", "Validate", "check configuration")
	}

	switch c.App.Env {
	case EnvProd, EnvDev, EnvTest:
	default:
		return invalid("app.env %q must be one of prod, dev, test", c.App.Env)
	}
	switch c.App.Store {
	case StoreNeo4j, StoreMemory:
	default:
		return invalid("app.store %q must be neo4j or memory", c.App.Store)
	}

	if err := validatePriority("identifiers.people", c.Identifiers.People, personIdentifierTypes); err != nil {
		return invalid("%v", err)
	}
	if err := validatePriority("identifiers.structures", c.Identifiers.Structures, organizationIdentifierTypes); err != nil {
		return invalid("%v", err)
	}

	if c.Consumption.QueueCapacity <= 0 {
		return invalid("amqp.queue_capacity must be positive, got %d", c.Consumption.QueueCapacity)
	}
	if c.Consumption.TaskParallelism <= 0 {
		return invalid("amqp.task_parallelism must be positive, got %d", c.Consumption.TaskParallelism)
	}
	if c.Consumption.WaitBeforeShutdown < 0 {
		return invalid("amqp.wait_before_shutdown cannot be negative")
	}
	if c.Consumption.MaxDeliver < 0 {
		return invalid("amqp.max_deliver cannot be negative")
	}

	if c.NATS.URL == "" {
		return invalid("nats.url is required")
	}
	if c.App.Store == StoreNeo4j && c.Neo4j.URI == "" {
		return invalid("neo4j.uri is required when app.store is neo4j")
	}
	switch c.Neo4j.Edition {
	case "community", "enterprise":
	default:
		return invalid("neo4j.edition %q must be community or enterprise", c.Neo4j.Edition)
	}

	streams := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		streams[s.Name] = true
	}
	seen := make(map[string]bool, len(c.Topics))
	for _, t := range c.Topics {
		if !slices.Contains(knownTopics, t.Name) {
			return invalid("unknown topic %q", t.Name)
		}
		if seen[t.Name] {
			return invalid("topic %q declared twice", t.Name)
		}
		seen[t.Name] = true
		if !streams[t.Stream] {
			return invalid("topic %q references undeclared stream %q", t.Name, t.Stream)
		}
		if t.Consumer == "" || t.Subject == "" {
			return invalid("topic %q needs a consumer and a subject", t.Name)
		}
	}

	return nil
}

func validatePriority(key string, order, allowed []string) error {
	if len(order) == 0 {
		return fmt.Errorf("%s cannot be empty", key)
	}
	for _, t := range order {
		if !slices.Contains(allowed, t) {
			return fmt.Errorf("%s: unknown identifier type %q", key, t)
		}
	}
	return nil
}
