package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	configPathEnv    = "DIGEST_CONFIG"
	geminiAPIKeyEnv  = "GEMINI_API_KEY"
	geminiModelEnv   = "GEMINI_MODEL"
	githubTokenEnv   = "GITHUB_TOKEN"
	feishuWebhookEnv = "FEISHU_WEBHOOK"
	dataDirEnv       = "DIGEST_DATA_DIR"
	concurrencyEnv   = "DIGEST_CONCURRENCY"
)

// Config 汇总全部运行配置。
// 优先级：环境变量 > YAML 配置文件 > 内置默认值。
type Config struct {
	Gemini    GeminiConfig    `yaml:"gemini"`
	Github    GithubConfig    `yaml:"github"`
	Storage   StorageConfig   `yaml:"storage"`
	Gate      GateConfig      `yaml:"gate"`
	Retry     RetryConfig     `yaml:"retry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Sources   SourcesConfig   `yaml:"sources"`
	Feishu    FeishuConfig    `yaml:"feishu"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// GeminiConfig 大模型访问配置
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// GithubConfig PR 数据源配置
type GithubConfig struct {
	Token string `yaml:"token"`
	Repo  string `yaml:"repo"`
}

// StorageConfig 日报/周报文件目录
type StorageConfig struct {
	DailyDir  string `yaml:"dailyDir"`
	WeeklyDir string `yaml:"weeklyDir"`
}

// GateConfig 限流闸门参数。间隔单位为毫秒。
type GateConfig struct {
	ItemConcurrency     int `yaml:"itemConcurrency"`
	ItemIntervalMs      int `yaml:"itemIntervalMs"`
	OverviewConcurrency int `yaml:"overviewConcurrency"`
	OverviewIntervalMs  int `yaml:"overviewIntervalMs"`
}

// RetryConfig 过载重试参数
type RetryConfig struct {
	MaxRetries  int `yaml:"maxRetries"`
	BaseDelayMs int `yaml:"baseDelayMs"`
}

// PipelineConfig 批处理流水线参数
type PipelineConfig struct {
	WorkerCount     int `yaml:"workerCount"`
	OverviewTopN    int `yaml:"overviewTopN"`
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

// SourcesConfig 社区数据源端点
type SourcesConfig struct {
	ChineseForumName     string `yaml:"chineseForumName"`
	ChineseForumBaseURL  string `yaml:"chineseForumBaseUrl"`
	ChineseForumCategory string `yaml:"chineseForumCategory"`
	EnglishForumName     string `yaml:"englishForumName"`
	EnglishForumBaseURL  string `yaml:"englishForumBaseUrl"`
	EnglishForumCategory string `yaml:"englishForumCategory"`
	RedditName           string `yaml:"redditName"`
	RedditListURL        string `yaml:"redditListUrl"`
}

// FeishuConfig 推送配置，webhook 为空则不推送
type FeishuConfig struct {
	Webhook string `yaml:"webhook"`
}

// SchedulerConfig 定时执行配置
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression"`
}

// ItemInterval 返回条目闸门的最小间隔
func (g GateConfig) ItemInterval() time.Duration {
	return time.Duration(g.ItemIntervalMs) * time.Millisecond
}

// OverviewInterval 返回总结闸门的最小间隔
func (g GateConfig) OverviewInterval() time.Duration {
	return time.Duration(g.OverviewIntervalMs) * time.Millisecond
}

// BaseDelay 返回重试基础等待
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// Cooldown 返回多日处理的文件间冷却
func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

// Load 读取 .env、YAML 配置文件（如果 DIGEST_CONFIG 指定了路径）并应用环境变量覆盖
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("未找到 .env 文件，使用系统环境变量")
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("⚠️ 读取配置文件 %s 失败: %v，回退到默认值", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warnf("⚠️ 解析配置文件 %s 失败: %v，回退到默认值", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv(geminiModelEnv); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.Github.Token = v
	}
	if v := os.Getenv(feishuWebhookEnv); v != "" {
		c.Feishu.Webhook = v
	}
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.DailyDir = v + "/daily"
		c.Storage.WeeklyDir = v + "/weekly"
	}
	if v := os.Getenv(concurrencyEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.WorkerCount = n
		}
	}
}

func defaultConfig() Config {
	return Config{
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash-lite",
		},
		Github: GithubConfig{
			Repo: "obsidianmd/obsidian-releases",
		},
		Storage: StorageConfig{
			DailyDir:  "data/daily",
			WeeklyDir: "data/weekly",
		},
		Gate: GateConfig{
			ItemConcurrency:     3,
			ItemIntervalMs:      2000,
			OverviewConcurrency: 1,
			OverviewIntervalMs:  1000,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 5000,
		},
		Pipeline: PipelineConfig{
			WorkerCount:     5,
			OverviewTopN:    10,
			CooldownSeconds: 10,
		},
		Sources: SourcesConfig{
			ChineseForumName:     "Obsidian Chinese Forum",
			ChineseForumBaseURL:  "https://forum-zh.obsidian.md",
			ChineseForumCategory: "https://forum-zh.obsidian.md/c/8.json",
			EnglishForumName:     "Obsidian English Forum",
			EnglishForumBaseURL:  "https://forum.obsidian.md",
			EnglishForumCategory: "https://forum.obsidian.md/c/share-showcase/9.json",
			RedditName:           "Reddit",
			RedditListURL:        "https://www.reddit.com/r/ObsidianMD/new.json?limit=50",
		},
		Scheduler: SchedulerConfig{
			CronExpression: "30 0 * * *",
		},
	}
}
