package config

import (
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	LogMode string `envconfig:"LOG_MODE" default:"development"`

	Neo4jURI         string        `envconfig:"NEO4J_URI" default:"neo4j://localhost:7687"`
	Neo4jUser        string        `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPassword    string        `envconfig:"NEO4J_PASSWORD"`
	Neo4jDatabase    string        `envconfig:"NEO4J_DATABASE"`
	Neo4jMaxPoolSize int           `envconfig:"NEO4J_MAX_POOL_SIZE" default:"50"`
	Neo4jTimeout     time.Duration `envconfig:"NEO4J_TIMEOUT" default:"10s"`

	// DataRoot enthält mesh/, pubmed/baseline/, pubmed/updatefiles/, dtd/ und errors/.
	DataRoot string `envconfig:"DATA_ROOT" default:"./data"`

	FTPAddr             string        `envconfig:"FTP_ADDR" default:"ftp.ncbi.nlm.nih.gov:21"`
	FTPUser             string        `envconfig:"FTP_USER" default:"anonymous"`
	FTPPassword         string        `envconfig:"FTP_PASSWORD" default:"anonymous"`
	FTPBaselineDir      string        `envconfig:"FTP_BASELINE_DIR" default:"/pubmed/baseline"`
	FTPUpdateDir        string        `envconfig:"FTP_UPDATE_DIR" default:"/pubmed/updatefiles"`
	FTPConnections      int           `envconfig:"FTP_CONNECTIONS" default:"4"`
	FTPIdleTimeout      time.Duration `envconfig:"FTP_IDLE_TIMEOUT" default:"5m"`
	FTPRetries          int           `envconfig:"FTP_RETRIES" default:"6"`
	FTPReconnectEvery   int           `envconfig:"FTP_RECONNECT_EVERY" default:"2"`
	FTPReconnectDelay   time.Duration `envconfig:"FTP_RECONNECT_DELAY" default:"3s"`
	FTPProgressInterval time.Duration `envconfig:"FTP_PROGRESS_INTERVAL" default:"30s"`
	FTPFailFast         bool          `envconfig:"FTP_FAIL_FAST" default:"false"`

	BuildPacketSize      int  `envconfig:"BUILD_PACKET_SIZE" default:"5000"`
	BuildBatchSize       int  `envconfig:"BUILD_BATCH_SIZE" default:"1000"`
	BuildQueueSize       int  `envconfig:"BUILD_QUEUE_SIZE" default:"1"`
	BuildCareful         bool `envconfig:"BUILD_CAREFUL" default:"false"`
	CacheMaxJournals     int  `envconfig:"CACHE_MAX_JOURNALS" default:"20000"`
	CacheMaxAuthors      int  `envconfig:"CACHE_MAX_AUTHORS" default:"1000000"`
	CacheMaxAffiliations int  `envconfig:"CACHE_MAX_AFFILIATIONS" default:"100000"`

	MaxCollectiveNameLength int  `envconfig:"MAX_COLLECTIVE_NAME_LENGTH" default:"256"`
	ExtractVerifyHash       bool `envconfig:"EXTRACT_VERIFY_HASH" default:"true"`
	// ExtractMaxFiles begrenzt die Anzahl Dateien pro Lauf (0 = unbegrenzt).
	ExtractMaxFiles int `envconfig:"EXTRACT_MAX_FILES" default:"0"`

	FilterCacheSize        int           `envconfig:"FILTER_CACHE_SIZE" default:"16"`
	FilterDefaultNodeLimit int           `envconfig:"FILTER_DEFAULT_NODE_LIMIT" default:"5000"`
	FilterCacheCodec       string        `envconfig:"FILTER_CACHE_CODEC" default:"lz4"`
	RedisAddr              string        `envconfig:"REDIS_ADDR"`
	RedisPassword          string        `envconfig:"REDIS_PASSWORD"`
	RedisDB                int           `envconfig:"REDIS_DB" default:"0"`
	RedisTTL               time.Duration `envconfig:"REDIS_TTL" default:"1h"`

	// MetadataBackend ist "graph" (Neo4j) oder "sql" (gorm).
	MetadataBackend string `envconfig:"METADATA_BACKEND" default:"graph"`
	DBDSN           string `envconfig:"DB_DSN"`
	SQLitePath      string `envconfig:"SQLITE_PATH"`

	ArchiveS3URL    string `envconfig:"ARCHIVE_S3_URL"`
	ArchiveS3Key    string `envconfig:"ARCHIVE_S3_KEY"`
	ArchiveS3Secret string `envconfig:"ARCHIVE_S3_SECRET"`
	ArchiveS3Region string `envconfig:"ARCHIVE_S3_REGION" default:"eu-central-1"`
	ArchiveS3Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`
	KeepBackups     int    `envconfig:"KEEP_BACKUPS" default:"4"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
}

// DataDir beschreibt ein Quellverzeichnis auf dem FTP-Server und sein lokales Gegenstück.
type DataDir struct {
	Name   string
	Remote string
	Local  string
}

// DataDirs gibt die Quellverzeichnisse in Verarbeitungsreihenfolge zurück: erst Baseline, dann Updates.
func (c *Config) DataDirs() []DataDir {
	return []DataDir{
		{Name: "baseline", Remote: c.FTPBaselineDir, Local: filepath.Join(c.DataRoot, "pubmed", "baseline")},
		{Name: "updatefiles", Remote: c.FTPUpdateDir, Local: filepath.Join(c.DataRoot, "pubmed", "updatefiles")},
	}
}

func (c *Config) MeshDir() string   { return filepath.Join(c.DataRoot, "mesh") }
func (c *Config) DTDDir() string    { return filepath.Join(c.DataRoot, "dtd") }
func (c *Config) ErrorsDir() string { return filepath.Join(c.DataRoot, "errors") }

// ArchiveEnabled ist true, wenn ein S3-Bucket für Archiv und Backups konfiguriert ist.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != "" && c.ArchiveS3URL != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
