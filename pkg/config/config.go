// Package config loads and validates the server configuration.
//
// Configuration comes from three layers, later layers winning:
// built-in defaults, the optional nexagent.yaml file (with {{.ENV_VAR}}
// template expansion), and the NEXAGENT_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Responder  ResponderConfig  `yaml:"responder"`
	Agent      AgentConfig      `yaml:"agent"`
	Browser    BrowserConfig    `yaml:"browser"`
	Search     SearchConfig     `yaml:"search"`
}

// ServerConfig holds the HTTP bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns the host:port bind address.
func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

// StorageConfig holds the on-disk storage root.
type StorageConfig struct {
	DataRoot string `yaml:"data_root"`
}

// ClassifierConfig tunes the chat/agent classifier.
type ClassifierConfig struct {
	ChatThreshold     float64  `yaml:"chat_threshold"`
	AgentThreshold    float64  `yaml:"agent_threshold"`
	ShortPromptTokens int      `yaml:"short_prompt_tokens"`
	AgentKeywords     []string `yaml:"agent_keywords"`
	StepWords         []string `yaml:"step_words"`
}

// ResponderConfig tunes the direct responder.
type ResponderConfig struct {
	Identity  string            `yaml:"identity"`
	Greetings []string          `yaml:"greetings"`
	Farewells []string          `yaml:"farewells"`
	Stubs     map[string]string `yaml:"stubs"`
}

// AgentConfig tunes the agent execution loop.
type AgentConfig struct {
	BaseSteps   int `yaml:"base_steps"`
	StepCeiling int `yaml:"step_ceiling"`

	WebKeywords             []string `yaml:"web_keywords"`
	ConnectorKeywords       []string `yaml:"connector_keywords"`
	DataVerbs               []string `yaml:"data_verbs"`
	ComprehensiveIndicators []string `yaml:"comprehensive_indicators"`
	IntentKeywords          []string `yaml:"intent_keywords"`

	LLMTimeout       Duration `yaml:"llm_timeout"`
	ToolTimeout      Duration `yaml:"tool_timeout"`
	HeavyToolTimeout Duration `yaml:"heavy_tool_timeout"`
}

// BrowserConfig tunes the hardened browse pipeline.
type BrowserConfig struct {
	UserAgents           []string `yaml:"user_agents"`
	Proxies              []string `yaml:"proxies"`
	AntiScrapingPatterns []string `yaml:"anti_scraping_patterns"`

	NavTimeout        Duration `yaml:"nav_timeout"`
	NavTimeoutCeiling Duration `yaml:"nav_timeout_ceiling"`
	DelayMinMS        int      `yaml:"delay_min_ms"`
	DelayMaxMS        int      `yaml:"delay_max_ms"`

	MaxBrowsers int `yaml:"max_browsers"`
	MaxDepth    int `yaml:"max_depth"`

	CaptchaSolverURL string `yaml:"captcha_solver_url"`
	CaptchaSolverKey string `yaml:"captcha_solver_key"`
}

// SearchConfig configures the web_search backend.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Defaults returns a complete configuration; the service runs with no
// config file at all.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8000",
		},
		Storage: StorageConfig{
			DataRoot: "./data_store",
		},
		Classifier: ClassifierConfig{
			ChatThreshold:     0.60,
			AgentThreshold:    0.40,
			ShortPromptTokens: 20,
			AgentKeywords: []string{
				"build", "analyze", "scrape", "create", "generate", "implement",
				"automate", "research", "collect", "download", "extract",
				"summarize", "compare", "fetch", "browse", "navigate",
			},
			StepWords: []string{"then", "after", "next", "finally", "first", "second", "step"},
		},
		Responder: ResponderConfig{
			Identity: "I'm Nexagent, an AI assistant that can answer questions directly or plan and execute multi-step tasks with tools.",
			Greetings: []string{
				"Hello! How can I help you today?",
				"Hi there! What can I do for you?",
				"Hey! What would you like to work on?",
			},
			Farewells: []string{
				"You're welcome! Feel free to ask if you need anything else.",
				"Glad I could help. See you next time!",
				"Goodbye! Come back any time.",
			},
			Stubs: map[string]string{},
		},
		Agent: AgentConfig{
			BaseSteps:   20,
			StepCeiling: 100,
			WebKeywords: []string{
				"website", "url", "http", "browse", "scrape", "crawl", "search the web", "online",
			},
			ConnectorKeywords: []string{
				"then", "after that", "next", "finally", "followed by", "and then",
				"first", "second", "third", "lastly", "step",
			},
			DataVerbs: []string{
				"analyze", "process", "transform", "aggregate", "filter", "parse",
				"summarize", "compile", "extract",
			},
			ComprehensiveIndicators: []string{"comprehensive", "exhaustive", "detailed", "in-depth", "thorough"},
			IntentKeywords: []string{
				"add to cart", "order", "buy", "purchase", "find", "search for", "look up", "book",
			},
			LLMTimeout:       Duration(60 * time.Second),
			ToolTimeout:      Duration(30 * time.Second),
			HeavyToolTimeout: Duration(60 * time.Second),
		},
		Browser: BrowserConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Version/17.4 Safari/605.1.15 AppleWebKit/605.1.15 (KHTML, like Gecko)",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
			},
			Proxies: []string{},
			AntiScrapingPatterns: []string{
				"captcha", "cloudflare", "access denied", "403 forbidden",
				"rate limited", "too many requests", "unusual traffic",
				"are you a robot", "verify you are human", "blocked",
			},
			NavTimeout:        Duration(30 * time.Second),
			NavTimeoutCeiling: Duration(120 * time.Second),
			DelayMinMS:        500,
			DelayMaxMS:        2000,
			MaxBrowsers:       4,
			MaxDepth:          3,
		},
		Search: SearchConfig{},
	}
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	if c.Storage.DataRoot == "" {
		return fmt.Errorf("storage.data_root must not be empty")
	}
	if c.Classifier.ChatThreshold <= 0 || c.Classifier.ChatThreshold > 1 {
		return fmt.Errorf("classifier.chat_threshold must be in (0, 1], got %v", c.Classifier.ChatThreshold)
	}
	if c.Classifier.AgentThreshold <= 0 || c.Classifier.AgentThreshold > 1 {
		return fmt.Errorf("classifier.agent_threshold must be in (0, 1], got %v", c.Classifier.AgentThreshold)
	}
	if c.Agent.BaseSteps <= 0 {
		return fmt.Errorf("agent.base_steps must be positive, got %d", c.Agent.BaseSteps)
	}
	if c.Agent.StepCeiling < c.Agent.BaseSteps {
		return fmt.Errorf("agent.step_ceiling (%d) must be >= agent.base_steps (%d)",
			c.Agent.StepCeiling, c.Agent.BaseSteps)
	}
	if c.Browser.MaxBrowsers <= 0 {
		return fmt.Errorf("browser.max_browsers must be positive, got %d", c.Browser.MaxBrowsers)
	}
	if c.Browser.DelayMinMS > c.Browser.DelayMaxMS {
		return fmt.Errorf("browser.delay_min_ms (%d) must be <= browser.delay_max_ms (%d)",
			c.Browser.DelayMinMS, c.Browser.DelayMaxMS)
	}
	if c.Browser.NavTimeout <= 0 || c.Browser.NavTimeoutCeiling < c.Browser.NavTimeout {
		return fmt.Errorf("browser navigation timeouts are inconsistent")
	}
	return nil
}
