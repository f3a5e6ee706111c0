package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		Host         string        `yaml:"host"`
		APIKey       string        `yaml:"api_key"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
		RateLimit    float64       `yaml:"rate_limit"` // requests per second per API key
		RateBurst    int           `yaml:"rate_burst"`
	} `yaml:"server"`

	Workers struct {
		PoolSize        int           `yaml:"pool_size"`
		DefaultMaxWait  time.Duration `yaml:"default_max_wait"`
		HardTimeout     time.Duration `yaml:"hard_timeout"` // ceiling on any single extraction
		StartupTimeout  time.Duration `yaml:"startup_timeout"`
		ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
		ReplaceBackoff  time.Duration `yaml:"replace_backoff"`
		MaxReplaceDelay time.Duration `yaml:"max_replace_delay"`
	} `yaml:"workers"`

	Scraper struct {
		StartURL          string        `yaml:"start_url"`
		SearchBoxSelector string        `yaml:"search_box_selector"`
		UserAgent         string        `yaml:"user_agent"`
		HeadlessMode      bool          `yaml:"headless_mode"`
		PollInterval      time.Duration `yaml:"poll_interval"`
		ReadyTimeout      time.Duration `yaml:"ready_timeout"`
		Captcha           struct {
			APIKey          string        `yaml:"api_key"`
			Timeout         time.Duration `yaml:"timeout"`
			EnableAutoSolve bool          `yaml:"enable_auto_solve"`
		} `yaml:"captcha"`
	} `yaml:"scraper"`

	Window struct {
		ScreenWidth  int `yaml:"screen_width"`
		ScreenHeight int `yaml:"screen_height"`
		WindowWidth  int `yaml:"window_width"`
		WindowHeight int `yaml:"window_height"`
		Margin       int `yaml:"margin"`
	} `yaml:"window"`

	Proxy struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Protocol string `yaml:"protocol"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"proxy"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`

	Redis struct {
		URL      string        `yaml:"url"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"redis"`
}

// ProxyEnabled reports whether an outbound proxy identity is configured.
func (c *Config) ProxyEnabled() bool {
	return c.Proxy.Host != "" && c.Proxy.Port > 0
}

// ProxyServerFlag builds the Chromium --proxy-server value for the configured identity.
func (c *Config) ProxyServerFlag() string {
	protocol := c.Proxy.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s:%d", protocol, c.Proxy.Host, c.Proxy.Port)
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("workers.pool_size must be at least 1, got %d", c.Workers.PoolSize)
	}
	if c.Window.WindowWidth <= 0 || c.Window.WindowHeight <= 0 {
		return fmt.Errorf("window dimensions must be positive")
	}
	if c.Window.Margin < 0 {
		return fmt.Errorf("window.margin must not be negative")
	}
	if c.Scraper.PollInterval <= 0 {
		return fmt.Errorf("scraper.poll_interval must be positive")
	}
	return nil
}

// expandEnvVars expands environment variables in a string using ${VAR} or
// $VAR syntax. Unset variables expand to the empty string so a placeholder
// never survives as a literal config value.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		return os.Getenv(varName)
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}

	// Set defaults
	config.Server.Port = 8000
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 60 * time.Second
	config.Server.IdleTimeout = 60 * time.Second
	config.Server.RateLimit = 2
	config.Server.RateBurst = 5

	config.Workers.PoolSize = 2
	config.Workers.DefaultMaxWait = 10 * time.Second
	config.Workers.HardTimeout = 60 * time.Second
	config.Workers.StartupTimeout = 90 * time.Second
	config.Workers.ShutdownGrace = 30 * time.Second
	config.Workers.ReplaceBackoff = 2 * time.Second
	config.Workers.MaxReplaceDelay = 2 * time.Minute

	config.Scraper.StartURL = "https://www.google.com/search?udm=50&q="
	config.Scraper.SearchBoxSelector = "textarea[jsname='qyBLR']"
	config.Scraper.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	config.Scraper.HeadlessMode = false
	config.Scraper.PollInterval = time.Second
	config.Scraper.ReadyTimeout = 5 * time.Second
	config.Scraper.Captcha.Timeout = 120 * time.Second
	config.Scraper.Captcha.EnableAutoSolve = false

	config.Window.ScreenWidth = 3840
	config.Window.ScreenHeight = 2160
	config.Window.WindowWidth = 1280
	config.Window.WindowHeight = 900
	config.Window.Margin = 40

	config.Proxy.Protocol = "http"

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.Timeout = 5 * time.Second

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		c.Server.APIKey = apiKey
	}

	if workerCount := os.Getenv("WORKER_COUNT"); workerCount != "" {
		if n, err := strconv.Atoi(workerCount); err == nil {
			c.Workers.PoolSize = n
		}
	}

	if margin := os.Getenv("WINDOW_MARGIN"); margin != "" {
		if m, err := strconv.Atoi(margin); err == nil {
			c.Window.Margin = m
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if startURL := os.Getenv("SCRAPER_START_URL"); startURL != "" {
		c.Scraper.StartURL = startURL
	}

	if headless := os.Getenv("HEADLESS_MODE"); headless != "" {
		c.Scraper.HeadlessMode = headless == "true" || headless == "1"
	}

	if captchaAPIKey := os.Getenv("CAPTCHA_API_KEY"); captchaAPIKey != "" {
		c.Scraper.Captcha.APIKey = captchaAPIKey
		c.Scraper.Captcha.EnableAutoSolve = true
	}

	if proxyHost := os.Getenv("PROXY_HOST"); proxyHost != "" {
		c.Proxy.Host = proxyHost
	}

	if proxyPort := os.Getenv("PROXY_PORT"); proxyPort != "" {
		if p, err := strconv.Atoi(proxyPort); err == nil {
			c.Proxy.Port = p
		}
	}

	if proxyProtocol := os.Getenv("PROXY_PROTOCOL"); proxyProtocol != "" {
		c.Proxy.Protocol = proxyProtocol
	}

	if proxyUser := os.Getenv("PROXY_USERNAME"); proxyUser != "" {
		c.Proxy.Username = proxyUser
	}

	if proxyPass := os.Getenv("PROXY_PASSWORD"); proxyPass != "" {
		c.Proxy.Password = proxyPass
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			c.Redis.DB = db
		}
	}
}
