package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string            `yaml:"discord_token"`
	GuildID      string            `yaml:"guild_id"`
	DatabasePath string            `yaml:"database_path"`
	LogLevel     string            `yaml:"log_level"`
	Health       HealthConfig      `yaml:"health"`
	Store        StoreConfig       `yaml:"store"`
	Application  ApplicationConfig `yaml:"application"`
	Ticket       TicketConfig      `yaml:"ticket"`
	GenAI        GenAIConfig       `yaml:"genai"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Dir      string         `yaml:"dir"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type ApplicationConfig struct {
	LogChannelID string       `yaml:"log_channel_id"`
	SkipWord     string       `yaml:"skip_word"`
	Title        string       `yaml:"title"`
	Intro        string       `yaml:"intro"`
	Steps        []StepConfig `yaml:"steps"`
}

type TicketConfig struct {
	CategoryID              string       `yaml:"category_id"`
	NamePrefix              string       `yaml:"name_prefix"`
	SkipWord                string       `yaml:"skip_word"`
	Triggers                []string     `yaml:"triggers"`
	Greetings               []string     `yaml:"greetings"`
	Steps                   []StepConfig `yaml:"steps"`
	Summary                 string       `yaml:"summary"`
	TrainedWeight           float64      `yaml:"trained_weight"`
	Seed                    uint64       `yaml:"seed"`
	HistoryLimit            int          `yaml:"history_limit"`
	ResponderTimeoutSeconds int          `yaml:"responder_timeout_seconds"`
	GenerativeBudget        BudgetConfig `yaml:"generative_budget"`
	CloseDelaySeconds       int          `yaml:"close_delay_seconds"`
	Apology                 string       `yaml:"apology"`
	StaffNotice             string       `yaml:"staff_notice"`
	WelcomeBack             string       `yaml:"welcome_back"`
	CompletedGreeting       string       `yaml:"completed_greeting"`
}

type BudgetConfig struct {
	MaxCalls      int `yaml:"max_calls"`
	WindowSeconds int `yaml:"window_seconds"`
}

type GenAIConfig struct {
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	Models       []string `yaml:"models"`
	Temperature  float64  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
}

type StepConfig struct {
	ID          string         `yaml:"id"`
	Prompt      string         `yaml:"prompt"`
	Placeholder string         `yaml:"placeholder"`
	Kind        string         `yaml:"kind"`
	Choices     []ChoiceConfig `yaml:"choices"`
	Required    bool           `yaml:"required"`
	Field       string         `yaml:"field"`
	Extractor   string         `yaml:"extractor"`
	Pattern     string         `yaml:"pattern"`
	Branches    []BranchConfig `yaml:"branches"`
}

type ChoiceConfig struct {
	Label       string `yaml:"label"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
}

type BranchConfig struct {
	When   string `yaml:"when"`
	Equals string `yaml:"equals"`
	Goto   string `yaml:"goto"`
}

// Steps are required unless the YAML says otherwise.
func (s *StepConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain StepConfig
	raw := plain{Required: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = StepConfig(raw)
	return nil
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "data/supreme.db",
		LogLevel:     "info",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Store:        StoreConfig{Backend: "file", Dir: "data", Redis: RedisConfig{Addr: "localhost:6379", Prefix: "supreme:"}, Postgres: PostgresConfig{Table: "kv_documents"}},
		Application: ApplicationConfig{
			SkipWord: "skip",
			Title:    "MM Trainee Application",
			Intro:    "Thank you for your interest in becoming an MM Trainee!\n\nThis application consists of **%d questions** that will be asked one at a time.\n\nPlease answer each question honestly and clearly. You can take your time - there is no rush.\n\n**Click \"Start Application\" to begin, or \"Close Application\" to cancel.**",
			Steps:    defaultApplicationSteps(),
		},
		Ticket: TicketConfig{
			NamePrefix:              "ticket-",
			SkipWord:                "skip",
			Triggers:                []string{"trade", "wanna trade"},
			Greetings:               []string{"hi", "hello", "helo", "hey"},
			Steps:                   defaultTradeSteps(),
			Summary:                 "Trade Setup (Final)\n{author} is trading with {partner}\n{author} gives:\n\n{user_item} x{user_qty}\n{partner} gives:\n\n{partner_item} x{partner_qty}\nBoth of you, please type confirm in this ticket if everything is correct.",
			TrainedWeight:           0.85,
			HistoryLimit:            10,
			ResponderTimeoutSeconds: 20,
			GenerativeBudget:        BudgetConfig{MaxCalls: 6, WindowSeconds: 60},
			CloseDelaySeconds:       5,
			Apology:                 "Sorry, I couldn't come up with an answer right now. A staff member will be with you shortly.",
			StaffNotice:             "AI has been disabled for this ticket because a staff member has joined.",
			WelcomeBack:             "Welcome back! We were in the middle of setting up your trade.",
			CompletedGreeting:       "If you'd like to confirm the trade or make changes, let the staff know in this ticket.",
		},
		GenAI: GenAIConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Models:      []string{"llama-3.3-70b-versatile", "llama-3.1-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768"},
			Temperature: 0.7,
			MaxTokens:   500,
			SystemPrompt: "You are Supreme AI, a helpful and professional Discord support assistant.\n" +
				"Answer clearly and concisely, stay friendly and professional, and keep replies under 500 characters when possible.\n" +
				"If you don't know something, say so and suggest waiting for human staff. Never make up information.\n" +
				"If a trade is in progress, use the provided trade details (items, quantities, partner) to answer accurately.",
		},
	}
}

func defaultApplicationSteps() []StepConfig {
	yesNo := []ChoiceConfig{{Label: "Yes", Value: "Yes"}, {Label: "No", Value: "No"}}
	return []StepConfig{
		{ID: "q1", Prompt: "1. What is your age?", Kind: "choice", Required: true, Choices: []ChoiceConfig{
			{Label: "Under 16", Value: "Under 16"}, {Label: "16-17", Value: "16-17"}, {Label: "18+", Value: "18+"},
		}},
		{ID: "q2", Prompt: "2. How long active in STB community?", Placeholder: "e.g. 6 months", Kind: "text", Required: true},
		{ID: "q3", Prompt: "3. What is your time zone?", Placeholder: "e.g. EST, GMT+1", Kind: "text", Required: true},
		{ID: "q4", Prompt: "4. Languages you read/write?", Placeholder: "e.g. English, Spanish", Kind: "text", Required: true},
		{ID: "q5", Prompt: "5. Have 2+ Fortnite accounts?", Kind: "choice", Required: true, Choices: yesNo},
		{ID: "q6", Prompt: "6. Can record clips & stay online?", Kind: "choice", Required: true, Choices: yesNo},
		{ID: "q7", Prompt: "7. Weekly availability?", Kind: "choice", Required: true, Choices: []ChoiceConfig{
			{Label: "3 Hours / week", Value: "3 Hours / week"},
			{Label: "7-14 Hours / week", Value: "7-14 Hours / week"},
			{Label: "14+ Hours / week", Value: "14+ Hours / week"},
		}},
		{ID: "q8", Prompt: "8. Any history of bans/scams?", Placeholder: "Yes/No (explain if yes)", Kind: "text", Required: true},
		{ID: "q9", Prompt: "9. Explain history (if applicable)", Placeholder: "Leave blank if No above", Kind: "text", Required: false},
		{ID: "q10", Prompt: "10. Any vouches?", Placeholder: "List names/servers or \"None\"", Kind: "text", Required: true},
		{ID: "q11", Prompt: "11. Help with other MM services?", Placeholder: "Yes/No", Kind: "text", Required: true},
	}
}

func defaultTradeSteps() []StepConfig {
	return []StepConfig{
		{ID: "items", Prompt: "What are you giving, and what is your partner giving?", Kind: "text", Required: true, Extractor: "trade_items"},
		{ID: "user_qty", Prompt: "Got it. What quantity of {user_item} do you give?", Kind: "text", Required: true, Field: "user_qty", Extractor: "quantity", Pattern: `\d`,
			Branches: []BranchConfig{{When: "partner_item", Goto: "partner_qty"}}},
		{ID: "partner_item", Prompt: "What is your partner giving?", Kind: "text", Required: true, Field: "partner_item", Extractor: "item"},
		{ID: "partner_qty", Prompt: "What quantity of {partner_item} does your partner give?", Kind: "text", Required: true, Field: "partner_qty", Extractor: "quantity", Pattern: `\d`},
		{ID: "tip", Prompt: "Do you want to add a priority tip for faster handling? (yes/no)", Kind: "text", Required: false, Field: "tip"},
		{ID: "partner_id", Prompt: "Who is your trade partner? Please @mention them or send their Discord ID.", Kind: "text", Required: true, Field: "partner", Extractor: "mention", Pattern: `<@!?\d+>|\d{15,20}`},
	}
}

// Load reads .env, the YAML file at CONFIG_PATH and then environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// LoadForRun is Load plus the checks only the gateway process needs.
func LoadForRun() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("HEALTH_ADDR") == "" {
		cfg.Health.Addr = ":" + port
	}
	cfg.Store.Backend = envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Dir = envString("STORE_DIR", cfg.Store.Dir)
	cfg.Store.Redis.Addr = envString("REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = envString("REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = envInt("REDIS_DB", cfg.Store.Redis.DB)
	cfg.Store.Postgres.DSN = envString("POSTGRES_DSN", cfg.Store.Postgres.DSN)
	cfg.Application.LogChannelID = envString("APPLICATION_LOG_CHANNEL", cfg.Application.LogChannelID)
	cfg.Ticket.CategoryID = envString("TICKET_CATEGORY_ID", cfg.Ticket.CategoryID)
	cfg.Ticket.TrainedWeight = envFloat("TRAINED_WEIGHT", cfg.Ticket.TrainedWeight)
	cfg.Ticket.ResponderTimeoutSeconds = envInt("RESPONDER_TIMEOUT_SECONDS", cfg.Ticket.ResponderTimeoutSeconds)
	cfg.Ticket.CloseDelaySeconds = envInt("TICKET_CLOSE_DELAY_SECONDS", cfg.Ticket.CloseDelaySeconds)
	cfg.GenAI.APIKey = envString("GROQ_API_KEY", cfg.GenAI.APIKey)
	cfg.GenAI.BaseURL = envString("GENAI_BASE_URL", cfg.GenAI.BaseURL)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
