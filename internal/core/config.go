package core

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// 写入端类型
const (
	SinkJSONL    = "jsonl"
	SinkPostgres = "postgres"
	SinkMongo    = "mongo"
)

// 检查点后端
const (
	CheckpointFile  = "file"
	CheckpointRedis = "redis"
)

// Config 应用程序配置
type Config struct {
	Crawl      models.CrawlConfig `mapstructure:"crawl"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Output     OutputConfig       `mapstructure:"output"`
	Sink       SinkConfig         `mapstructure:"sink"`
	Checkpoint CheckpointConfig   `mapstructure:"checkpoint"`
	Metrics    MetricsConfig      `mapstructure:"metrics"`

	// SitesFile 额外的站点适配器文件, 与内置站点合并
	SitesFile string `mapstructure:"sites_file"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// SinkConfig 写入端配置
type SinkConfig struct {
	Kinds     []string       `mapstructure:"kinds"`
	JSONLPath string         `mapstructure:"jsonl_path"` // 为空时写到 output/records_<run>.jsonl
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Mongo     MongoConfig    `mapstructure:"mongo"`
}

// PostgresConfig PostgreSQL写入配置
type PostgresConfig struct {
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
	Table  string `mapstructure:"table"`
}

// MongoConfig MongoDB写入配置
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// CheckpointConfig 断点续爬配置
type CheckpointConfig struct {
	Backend  string `mapstructure:"backend"`
	Dir      string `mapstructure:"dir"` // 为空时使用 output/checkpoints
	RedisURL string `mapstructure:"redis_url"`
	Prefix   string `mapstructure:"prefix"`
}

// MetricsConfig 指标配置, Addr为空表示不启动
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig 加载配置文件
// 顺序: 默认值 < 配置文件 < .env与环境变量; 命令行参数由MergeCLIFlags最后合并
func LoadConfig(configPath string) (*Config, error) {
	// .env不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warnf("读取.env失败: %v", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".catalogcrawl"))
		}
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if config.Sink.Postgres.DSN == "" {
		config.Sink.Postgres.DSN = dsnFromEnv()
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	d := models.DefaultCrawlConfig()

	v.SetDefault("crawl.threshold", d.Threshold)
	v.SetDefault("crawl.max_depth", d.MaxDepth)
	v.SetDefault("crawl.max_pages", d.MaxPages)
	v.SetDefault("crawl.max_empty_pages", d.MaxEmptyPages)
	v.SetDefault("crawl.max_page_failures", d.MaxPageFailures)
	v.SetDefault("crawl.navigation_timeout", d.NavigationTimeout)
	v.SetDefault("crawl.count_timeout", d.CountTimeout)
	v.SetDefault("crawl.poll_interval", d.PollInterval)
	v.SetDefault("crawl.stable_reads", d.StableReads)
	v.SetDefault("crawl.max_polls", d.MaxPolls)
	v.SetDefault("crawl.settle_delay", d.SettleDelay)
	v.SetDefault("crawl.max_retries", d.MaxRetries)
	v.SetDefault("crawl.retry_backoff", d.RetryBackoff)
	v.SetDefault("crawl.concurrency", d.Concurrency)
	v.SetDefault("crawl.delay", d.Delay)
	v.SetDefault("crawl.headless", d.Headless)
	v.SetDefault("crawl.respect_robots", false)
	v.SetDefault("crawl.resume", false)
	v.SetDefault("crawl.user_agent", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")

	v.SetDefault("sink.kinds", []string{SinkJSONL})
	v.SetDefault("sink.jsonl_path", "")
	v.SetDefault("sink.postgres.schema", "db_scrapy")
	v.SetDefault("sink.postgres.table", "products")
	v.SetDefault("sink.mongo.database", "catalogcrawl")
	v.SetDefault("sink.mongo.collection", "products")

	v.SetDefault("checkpoint.backend", CheckpointFile)
	v.SetDefault("checkpoint.dir", "")
	v.SetDefault("checkpoint.prefix", "catalogcrawl:done")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("sites_file", "")
}

// bindEnv 环境变量覆盖, 前缀 CATALOGCRAWL_, 例如 CATALOGCRAWL_CRAWL_THRESHOLD
// 常用的连接串也接受不带前缀的名字
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("catalogcrawl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("sink.postgres.dsn", "CATALOGCRAWL_SINK_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("sink.mongo.uri", "CATALOGCRAWL_SINK_MONGO_URI", "MONGO_URL")
	_ = v.BindEnv("checkpoint.redis_url", "CATALOGCRAWL_CHECKPOINT_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("metrics.addr", "CATALOGCRAWL_METRICS_ADDR", "METRICS_ADDR")
}

// dsnFromEnv 由分散的数据库变量拼出连接串
func dsnFromEnv() string {
	host := os.Getenv("db_hostname")
	if host == "" {
		return ""
	}
	port := os.Getenv("db_port")
	if port == "" {
		port = "5432"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(os.Getenv("db_username"), os.Getenv("db_password")),
		Host:     host + ":" + port,
		Path:     "/" + os.Getenv("db_name"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// GetCrawlConfig 从配置中提取遍历配置
func (c *Config) GetCrawlConfig() models.CrawlConfig {
	return c.Crawl
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// CLIFlags 命令行参数, 零值表示未指定
type CLIFlags struct {
	Threshold     int
	MaxPages      int
	Concurrency   int
	Delay         time.Duration
	Headless      *bool
	Resume        bool
	RespectRobots bool
	Sinks         []string
	OutputDir     string
	MetricsAddr   string
	SitesFile     string
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(f CLIFlags) {
	if f.Threshold > 0 {
		c.Crawl.Threshold = f.Threshold
	}
	if f.MaxPages > 0 {
		c.Crawl.MaxPages = f.MaxPages
	}
	if f.Concurrency > 0 {
		c.Crawl.Concurrency = f.Concurrency
	}
	if f.Delay > 0 {
		c.Crawl.Delay = f.Delay
	}
	if f.Headless != nil {
		c.Crawl.Headless = *f.Headless
	}
	if f.Resume {
		c.Crawl.Resume = true
	}
	if f.RespectRobots {
		c.Crawl.RespectRobots = true
	}
	if len(f.Sinks) > 0 {
		c.Sink.Kinds = f.Sinks
	}
	if f.OutputDir != "" {
		c.Output.BaseDir = f.OutputDir
	}
	if f.MetricsAddr != "" {
		c.Metrics.Addr = f.MetricsAddr
	}
	if f.SitesFile != "" {
		c.SitesFile = f.SitesFile
	}
}

// Validate 校验合并后的配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return &models.ValidationError{Field: "crawl", Reason: err.Error()}
	}

	if len(c.Sink.Kinds) == 0 {
		return &models.ValidationError{Field: "sink.kinds", Reason: "至少需要一个写入端"}
	}
	for _, kind := range c.Sink.Kinds {
		switch kind {
		case SinkJSONL:
		case SinkPostgres:
			if c.Sink.Postgres.DSN == "" {
				return &models.ValidationError{Field: "sink.postgres.dsn", Reason: "postgres写入端需要DATABASE_URL或dsn配置"}
			}
		case SinkMongo:
			if c.Sink.Mongo.URI == "" {
				return &models.ValidationError{Field: "sink.mongo.uri", Reason: "mongo写入端需要MONGO_URL或uri配置"}
			}
		default:
			return &models.ValidationError{Field: "sink.kinds", Reason: fmt.Sprintf("未知写入端: %q", kind)}
		}
	}

	switch c.Checkpoint.Backend {
	case CheckpointFile:
	case CheckpointRedis:
		if c.Checkpoint.RedisURL == "" {
			return &models.ValidationError{Field: "checkpoint.redis_url", Reason: "redis检查点需要REDIS_URL"}
		}
	default:
		return &models.ValidationError{Field: "checkpoint.backend", Reason: fmt.Sprintf("未知检查点后端: %q", c.Checkpoint.Backend)}
	}

	return nil
}

// JSONLPath 记录文件路径
func (c *Config) JSONLPath(runID string) string {
	if c.Sink.JSONLPath != "" {
		return c.Sink.JSONLPath
	}
	return filepath.Join(c.Output.BaseDir, fmt.Sprintf("records_%s.jsonl", runID))
}

// CheckpointDir 检查点目录
func (c *Config) CheckpointDir() string {
	if c.Checkpoint.Dir != "" {
		return c.Checkpoint.Dir
	}
	return filepath.Join(c.Output.BaseDir, "checkpoints")
}
