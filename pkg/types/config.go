package types

import "time"

// DefaultUserAgents is the pool of browser User-Agent strings used for
// publisher and PubMed requests. One is picked per client.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.155 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.155 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.201 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.78 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.6312.122 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.6367.118 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.6312.58 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.6261.128 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.6422.60 Safari/537.36",
}

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgents is the pool of User-Agent headers to pick from.
	UserAgents []string `json:"user_agents" yaml:"user_agents" mapstructure:"user_agents"`
}

// DatabaseAdapter selects the SQL driver.
type DatabaseAdapter string

const (
	// AdapterSQLite3 uses the cgo driver github.com/mattn/go-sqlite3.
	AdapterSQLite3 DatabaseAdapter = "sqlite3"

	// AdapterSQLite uses the pure Go driver modernc.org/sqlite.
	AdapterSQLite DatabaseAdapter = "sqlite"
)

// DatabaseConfig holds settings for the article database.
type DatabaseConfig struct {
	Adapter DatabaseAdapter `json:"adapter" yaml:"adapter" mapstructure:"adapter"`

	// Path is the SQLite database file. ":memory:" opens a private in-memory DB.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// ParsingConfig controls how articles and tables are processed.
type ParsingConfig struct {
	// SilentErrors suppresses logging of bad table rows.
	SilentErrors bool `json:"silent_errors" yaml:"silent_errors" mapstructure:"silent_errors"`

	// SaveArticlesWithoutActivations saves every processed article, not only
	// those with at least one extracted table.
	SaveArticlesWithoutActivations bool `json:"save_articles_without_activations" yaml:"save_articles_without_activations" mapstructure:"save_articles_without_activations"`

	// OverwriteExistingRows re-extracts articles that are already in the database.
	OverwriteExistingRows bool `json:"overwrite_existing_rows" yaml:"overwrite_existing_rows" mapstructure:"overwrite_existing_rows"`

	// CarefulParsing counts table columns over every body row instead of
	// only the first one.
	CarefulParsing bool `json:"careful_parsing" yaml:"careful_parsing" mapstructure:"careful_parsing"`

	// IgnoreBadRows skips malformed table rows instead of failing the table.
	IgnoreBadRows bool `json:"ignore_bad_rows" yaml:"ignore_bad_rows" mapstructure:"ignore_bad_rows"`

	// ExcludeTablesWithMissingLabels drops tables where a column label
	// could not be found.
	ExcludeTablesWithMissingLabels bool `json:"exclude_tables_with_missing_labels" yaml:"exclude_tables_with_missing_labels" mapstructure:"exclude_tables_with_missing_labels"`

	// SaveOriginalHTML keeps the table markup on each Table.
	SaveOriginalHTML bool `json:"save_original_html" yaml:"save_original_html" mapstructure:"save_original_html"`
}

// PubMedConfig holds settings for the NCBI E-utilities client.
type PubMedConfig struct {
	// APIKey raises the E-utilities rate limit. Optional.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retries on transient HTTP failures (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// IngestConfig holds settings for adding article files to the database.
type IngestConfig struct {
	// TableDir caches remotely downloaded tables. Empty disables caching.
	TableDir string `json:"table_dir" yaml:"table_dir" mapstructure:"table_dir"`

	// MetadataDir caches PubMed metadata. Empty always queries PubMed.
	MetadataDir string `json:"metadata_dir" yaml:"metadata_dir" mapstructure:"metadata_dir"`

	// PMIDFilenames treats each file's basename as its PubMed ID.
	PMIDFilenames bool `json:"pmid_filenames" yaml:"pmid_filenames" mapstructure:"pmid_filenames"`

	// Limit caps the number of files processed, chosen at random. Zero means all.
	Limit int `json:"limit" yaml:"limit" mapstructure:"limit"`

	// Workers is the number of articles parsed concurrently (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// Config groups all settings for the pipeline.
type Config struct {
	LogLevel string         `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" mapstructure:"http"`
	Database DatabaseConfig `json:"database" yaml:"database" mapstructure:"database"`
	Parsing  ParsingConfig  `json:"parsing" yaml:"parsing" mapstructure:"parsing"`
	PubMed   PubMedConfig   `json:"pubmed" yaml:"pubmed" mapstructure:"pubmed"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest" mapstructure:"ingest"`
}

// DefaultConfig returns the settings ACE runs with when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LogLevel: "warn",
		HTTP: HTTPConfig{
			Timeout:    10 * time.Second,
			UserAgents: DefaultUserAgents,
		},
		Database: DatabaseConfig{
			Adapter: AdapterSQLite3,
			Path:    "ace.db",
		},
		Parsing: ParsingConfig{
			SaveArticlesWithoutActivations: true,
			CarefulParsing:                 true,
			IgnoreBadRows:                  true,
		},
		PubMed: PubMedConfig{
			MaxRetries: 5,
		},
		Ingest: IngestConfig{
			Workers: 4,
		},
	}
}
