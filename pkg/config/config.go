package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Mutter0815/LaunchPro/internal/campaign"
	"github.com/Mutter0815/LaunchPro/internal/retry"
)

// Pipeline holds the stage tunables shared by the API and the worker.
type Pipeline struct {
	TrackingPollMaxAttempts int
	TrackingPollDelay       time.Duration
	ContentPollMaxAttempts  int
	ContentPollDelay        time.Duration
	ProcessBudget           time.Duration
	PlatformLaunchTimeout   time.Duration
	LaunchConcurrency       int
	MaxDeliveryRetries      int
}

type Platform struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   retry.Policy  `yaml:"retry"`
}

type GenAI struct {
	APIKey string
	Model  string
}

type APIConfig struct {
	Port      string
	DBDSN     string
	RMQURL    string
	Queue     string
	Migrate   bool
	Pipeline  Pipeline
	Platforms map[campaign.Platform]Platform
	GenAI     GenAI
}

type WorkerConfig struct {
	DBDSN       string
	RMQURL      string
	Queue       string
	Prefetch    int
	MetricsAddr string
	Pipeline    Pipeline
	Platforms   map[campaign.Platform]Platform
	GenAI       GenAI
}

type CLIConfig struct {
	DBDSN string
}

var (
	API    APIConfig
	Worker WorkerConfig
	CLI    CLIConfig
)

// LoadDotEnv reads .env (or the files given) into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("dotenv %s: %v", f, err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("required env %s is not set", k)
	}
	return v
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("env %s: must be positive, got %d", k, n)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("env %s: must be positive, got %s", k, v)
	}
	return d, nil
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		TrackingPollMaxAttempts: 20,
		TrackingPollDelay:       30 * time.Second,
		ContentPollMaxAttempts:  30,
		ContentPollDelay:        60 * time.Second,
		ProcessBudget:           14 * time.Minute,
		PlatformLaunchTimeout:   60 * time.Second,
		LaunchConcurrency:       3,
		MaxDeliveryRetries:      3,
	}
}

func LoadPipeline() (Pipeline, error) {
	p := DefaultPipeline()
	var err error
	ints := []struct {
		key string
		dst *int
	}{
		{"TRACKING_POLL_MAX_ATTEMPTS", &p.TrackingPollMaxAttempts},
		{"CONTENT_POLL_MAX_ATTEMPTS", &p.ContentPollMaxAttempts},
		{"LAUNCH_CONCURRENCY", &p.LaunchConcurrency},
		{"MAX_DELIVERY_RETRIES", &p.MaxDeliveryRetries},
	}
	for _, f := range ints {
		if *f.dst, err = getInt(f.key, *f.dst); err != nil {
			return Pipeline{}, err
		}
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TRACKING_POLL_DELAY", &p.TrackingPollDelay},
		{"CONTENT_POLL_DELAY", &p.ContentPollDelay},
		{"PROCESS_BUDGET", &p.ProcessBudget},
		{"PLATFORM_LAUNCH_TIMEOUT", &p.PlatformLaunchTimeout},
	}
	for _, f := range durations {
		if *f.dst, err = getDuration(f.key, *f.dst); err != nil {
			return Pipeline{}, err
		}
	}
	return p, nil
}

// DefaultRetry is the per-platform retry budget used unless the platform
// file overrides it.
func DefaultRetry(p campaign.Platform) retry.Policy {
	if p == campaign.PlatformTrafficSource {
		return retry.Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 20 * time.Second}
	}
	return retry.Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, Multiplier: 1.5, MaxDelay: 30 * time.Second}
}

var platformEnv = map[campaign.Platform]string{
	campaign.PlatformTrafficSource: "TRAFFIC_SOURCE",
	campaign.PlatformMeta:          "META",
	campaign.PlatformTikTok:        "TIKTOK",
}

// LoadPlatforms builds platform endpoints from env (<NAME>_URL,
// <NAME>_API_KEY) and then applies PLATFORMS_FILE when set.
func LoadPlatforms() (map[campaign.Platform]Platform, error) {
	out := make(map[campaign.Platform]Platform, len(platformEnv))
	for p, prefix := range platformEnv {
		out[p] = Platform{
			BaseURL: os.Getenv(prefix + "_URL"),
			APIKey:  os.Getenv(prefix + "_API_KEY"),
			Timeout: 30 * time.Second,
			Retry:   DefaultRetry(p),
		}
	}
	path := os.Getenv("PLATFORMS_FILE")
	if path == "" {
		return out, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platforms file: %w", err)
	}
	if err := mergePlatformFile(out, b); err != nil {
		return nil, fmt.Errorf("platforms file %s: %w", path, err)
	}
	return out, nil
}

type platformFile struct {
	Platforms map[string]Platform `yaml:"platforms"`
}

func mergePlatformFile(dst map[campaign.Platform]Platform, b []byte) error {
	var f platformFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	for name, over := range f.Platforms {
		p := campaign.Platform(name)
		cur, ok := dst[p]
		if !ok {
			return fmt.Errorf("%w: %s", campaign.ErrUnknownPlatform, name)
		}
		if over.BaseURL != "" {
			cur.BaseURL = over.BaseURL
		}
		if over.APIKey != "" {
			cur.APIKey = over.APIKey
		}
		if over.Timeout > 0 {
			cur.Timeout = over.Timeout
		}
		if over.Retry.MaxAttempts > 0 {
			cur.Retry = over.Retry
		}
		dst[p] = cur
	}
	return nil
}

func loadGenAI() GenAI {
	return GenAI{
		APIKey: os.Getenv("GENAI_API_KEY"),
		Model:  getenv("GENAI_MODEL", "gemini-2.5-flash"),
	}
}

func mustRuntime() (Pipeline, map[campaign.Platform]Platform) {
	pl, err := LoadPipeline()
	if err != nil {
		log.Fatal(err)
	}
	platforms, err := LoadPlatforms()
	if err != nil {
		log.Fatal(err)
	}
	return pl, platforms
}

func MustLoadAPI() {
	pl, platforms := mustRuntime()
	API = APIConfig{
		Port:      getenv("PORT", "8080"),
		DBDSN:     mustEnv("DB_DSN"),
		RMQURL:    mustEnv("RMQ_URL"),
		Queue:     getenv("QUEUE", "pipeline_tasks"),
		Migrate:   getenv("DB_MIGRATE", "true") == "true",
		Pipeline:  pl,
		Platforms: platforms,
		GenAI:     loadGenAI(),
	}
}

func MustLoadWorker() {
	pl, platforms := mustRuntime()
	prefetch, err := getInt("PREFETCH", 10)
	if err != nil {
		log.Fatal(err)
	}
	Worker = WorkerConfig{
		DBDSN:       mustEnv("DB_DSN"),
		RMQURL:      mustEnv("RMQ_URL"),
		Queue:       getenv("QUEUE", "pipeline_tasks"),
		Prefetch:    prefetch,
		MetricsAddr: getenv("METRICS_ADDR", ":9091"),
		Pipeline:    pl,
		Platforms:   platforms,
		GenAI:       loadGenAI(),
	}
}

func MustLoadCLI() {
	CLI = CLIConfig{DBDSN: mustEnv("DB_DSN")}
}
