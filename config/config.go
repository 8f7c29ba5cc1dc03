package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Symbols SymbolsConfig `yaml:"symbols"`
	Risk    RiskConfig    `yaml:"risk"`
	Filters FiltersConfig `yaml:"filters"`
	LLM     LLMConfig     `yaml:"llm"`
	Scan    ScanConfig    `yaml:"scan"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SymbolsConfig define qué instrumentos se analizan.
type SymbolsConfig struct {
	Watch     []string            `yaml:"watch"`
	Fallbacks map[string][]string `yaml:"fallbacks"` // símbolos alternativos cuando el primario no cotiza
}

// RiskConfig controla la gestión de riesgo y el balance virtual.
type RiskConfig struct {
	RiskPercent         float64 `yaml:"risk_percent"`
	MinRiskReward       float64 `yaml:"min_risk_reward"`
	RiskRewardCap       float64 `yaml:"risk_reward_cap"` // techo del ratio: un stop casi nulo no puede inflar el R:R
	VirtualBalance      float64 `yaml:"virtual_balance"`
	MinLot              float64 `yaml:"min_lot"`
	Leverage            float64 `yaml:"leverage"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	MaxDailyTrades      int     `yaml:"max_daily_trades"`
	CooldownHours       int     `yaml:"cooldown_hours"`
	PriceTolerance      float64 `yaml:"price_tolerance"`
	ForceCloseAfterDays int     `yaml:"force_close_after_days"`
}

// FiltersConfig controla las dos primeras etapas del pipeline.
type FiltersConfig struct {
	TechnicalMinScore int      `yaml:"technical_min_score"`
	RSIOversold       float64  `yaml:"rsi_oversold"`
	RSIOverbought     float64  `yaml:"rsi_overbought"`
	VolumeMultiplier  float64  `yaml:"volume_multiplier"`
	NewsLookbackHours int      `yaml:"news_lookback_hours"`
	MinNewsSentiment  float64  `yaml:"min_news_sentiment"`
	NewsImpacts       []string `yaml:"news_impacts"` // niveles que cuentan: HIGH, MEDIUM
}

// LLMConfig controla la etapa de juicio.
type LLMConfig struct {
	Provider            string  `yaml:"provider"` // ollama | gemini
	OllamaHost          string  `yaml:"ollama_host"`
	OllamaModel         string  `yaml:"ollama_model"`
	GeminiModel         string  `yaml:"gemini_model"`
	GeminiAPIKey        string  `yaml:"-"` // solo por env, nunca en YAML
	Temperature         float64 `yaml:"temperature"`
	TopP                float64 `yaml:"top_p"`
	MaxTokens           int     `yaml:"max_tokens"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	MinConfidence       int     `yaml:"min_confidence"`
	DisplayFloor        int     `yaml:"display_confidence_floor"` // confianza mínima presentada al operador
	MaxRetries          int     `yaml:"max_retries"`
	RetryDelaySeconds   int     `yaml:"retry_delay_seconds"`
	SelfAssessAfterZero int     `yaml:"self_assess_after_zero"` // ciclos con confianza 0 antes de la autoevaluación
}

// ScanConfig controla el bucle multi-pasada.
type ScanConfig struct {
	Passes             int    `yaml:"passes"`
	PassWaitSeconds    int    `yaml:"pass_wait_seconds"`
	IntervalSeconds    int    `yaml:"interval_seconds"`
	SymbolDelaySeconds int    `yaml:"symbol_delay_seconds"` // pausa entre símbolos para no machacar los proveedores
	FeedCap            int    `yaml:"feed_cap"`
	StopFile           string `yaml:"stop_file"` // si existe, el bucle pausa
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
		// sin archivo: solo defaults + env
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba los invariantes que no tienen default razonable.
func (c *Config) Validate() error {
	if len(c.Symbols.Watch) == 0 {
		return fmt.Errorf("validate: symbols.watch is empty")
	}
	if c.Risk.MinRiskReward > c.Risk.RiskRewardCap {
		return fmt.Errorf("validate: min_risk_reward %.2f above cap %.2f", c.Risk.MinRiskReward, c.Risk.RiskRewardCap)
	}
	if c.LLM.Provider != "ollama" && c.LLM.Provider != "gemini" {
		return fmt.Errorf("validate: unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "gemini" && c.LLM.GeminiAPIKey == "" {
		return fmt.Errorf("validate: gemini provider requires GEMINI_API_KEY")
	}
	return nil
}

// ScanInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalSeconds) * time.Second
}

// PassWait devuelve la espera entre sets de pasadas.
func (c *Config) PassWait() time.Duration {
	return time.Duration(c.Scan.PassWaitSeconds) * time.Second
}

// LLMTimeout devuelve el timeout duro de cada llamada al modelo.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// RetryDelay devuelve la espera entre reintentos por baja confianza.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.LLM.RetryDelaySeconds) * time.Second
}

// CooldownWindow devuelve la duración del bloqueo de re-entrada.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.Risk.CooldownHours) * time.Hour
}

// ForceCloseAge devuelve la edad máxima de un trade PENDING antes del
// cierre forzado.
func (c *Config) ForceCloseAge() time.Duration {
	return time.Duration(c.Risk.ForceCloseAfterDays) * 24 * time.Hour
}

// SymbolDelay devuelve la pausa entre símbolos dentro de una pasada.
func (c *Config) SymbolDelay() time.Duration {
	return time.Duration(c.Scan.SymbolDelaySeconds) * time.Second
}

// NewsLookback devuelve la ventana de noticias del filtro de sentimiento.
func (c *Config) NewsLookback() time.Duration {
	return time.Duration(c.Filters.NewsLookbackHours) * time.Hour
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.LLM.OllamaHost = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("SNIPER_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if len(cfg.Symbols.Watch) == 0 {
		cfg.Symbols.Watch = []string{"EURUSD=X", "GBPUSD=X", "USDJPY=X", "GC=F", "SI=F"}
	}
	if cfg.Symbols.Fallbacks == nil {
		cfg.Symbols.Fallbacks = map[string][]string{
			"SI=F": {"XAGUSD=X", "XAG=X"},
			"GC=F": {"XAUUSD=X", "XAU=X"},
		}
	}
	if cfg.Risk.RiskPercent <= 0 {
		cfg.Risk.RiskPercent = 10.0
	}
	if cfg.Risk.MinRiskReward <= 0 {
		cfg.Risk.MinRiskReward = 1.5
	}
	if cfg.Risk.RiskRewardCap <= 0 {
		cfg.Risk.RiskRewardCap = 10.0
	}
	if cfg.Risk.VirtualBalance <= 0 {
		cfg.Risk.VirtualBalance = 100.0
	}
	if cfg.Risk.MinLot <= 0 {
		cfg.Risk.MinLot = 0.01
	}
	if cfg.Risk.Leverage <= 0 {
		cfg.Risk.Leverage = 100
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 5
	}
	if cfg.Risk.MaxDailyTrades <= 0 {
		cfg.Risk.MaxDailyTrades = 10
	}
	if cfg.Risk.CooldownHours <= 0 {
		cfg.Risk.CooldownHours = 5
	}
	if cfg.Risk.PriceTolerance <= 0 {
		cfg.Risk.PriceTolerance = 0.001
	}
	if cfg.Risk.ForceCloseAfterDays <= 0 {
		cfg.Risk.ForceCloseAfterDays = 2
	}
	if cfg.Filters.TechnicalMinScore <= 0 {
		cfg.Filters.TechnicalMinScore = 70
	}
	if cfg.Filters.RSIOversold <= 0 {
		cfg.Filters.RSIOversold = 30
	}
	if cfg.Filters.RSIOverbought <= 0 {
		cfg.Filters.RSIOverbought = 70
	}
	if cfg.Filters.VolumeMultiplier <= 0 {
		cfg.Filters.VolumeMultiplier = 1.5
	}
	if cfg.Filters.NewsLookbackHours <= 0 {
		cfg.Filters.NewsLookbackHours = 24
	}
	if cfg.Filters.MinNewsSentiment <= 0 {
		cfg.Filters.MinNewsSentiment = 50
	}
	if len(cfg.Filters.NewsImpacts) == 0 {
		cfg.Filters.NewsImpacts = []string{"HIGH", "MEDIUM"}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.OllamaHost == "" {
		cfg.LLM.OllamaHost = "http://127.0.0.1:11434"
	}
	if cfg.LLM.OllamaModel == "" {
		cfg.LLM.OllamaModel = "deepseek-r1:8b"
	}
	if cfg.LLM.GeminiModel == "" {
		cfg.LLM.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.LLM.TopP <= 0 {
		cfg.LLM.TopP = 0.1
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 180
	}
	if cfg.LLM.MinConfidence <= 0 {
		cfg.LLM.MinConfidence = 70
	}
	if cfg.LLM.DisplayFloor <= 0 {
		cfg.LLM.DisplayFloor = 10
	}
	if cfg.LLM.MaxRetries <= 0 {
		cfg.LLM.MaxRetries = 5
	}
	if cfg.LLM.RetryDelaySeconds <= 0 {
		cfg.LLM.RetryDelaySeconds = 5
	}
	if cfg.LLM.SelfAssessAfterZero <= 0 {
		cfg.LLM.SelfAssessAfterZero = 5
	}
	if cfg.Scan.Passes <= 0 {
		cfg.Scan.Passes = 3
	}
	if cfg.Scan.PassWaitSeconds <= 0 {
		cfg.Scan.PassWaitSeconds = 300
	}
	if cfg.Scan.IntervalSeconds <= 0 {
		cfg.Scan.IntervalSeconds = 60
	}
	if cfg.Scan.SymbolDelaySeconds <= 0 {
		cfg.Scan.SymbolDelaySeconds = 1
	}
	if cfg.Scan.FeedCap <= 0 {
		cfg.Scan.FeedCap = 200
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "sniper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
