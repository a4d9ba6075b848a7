package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Room     RoomConfig     `mapstructure:"room"`
	Security SecurityConfig `mapstructure:"security"`
	WordBank WordBankConfig `mapstructure:"word_bank"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
	WSPort   int    `mapstructure:"ws_port"`
}

type GameConfig struct {
	MinPlayers        int           `mapstructure:"min_players"`
	MaxPlayers        int           `mapstructure:"max_players"`
	DescribeTimeLimit time.Duration `mapstructure:"describe_time_limit"`
	VoteTimeLimit     time.Duration `mapstructure:"vote_time_limit"`
	RoundDelay        time.Duration `mapstructure:"round_delay"`
}

type RoomConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxIdleTime       time.Duration `mapstructure:"max_idle_time"`
}

type SecurityConfig struct {
	RateLimits RateLimitConfig  `mapstructure:"rate_limits"`
	WordFilter WordFilterConfig `mapstructure:"word_filter"`
}

type RateLimitConfig struct {
	DescribeWindow     time.Duration `mapstructure:"describe_window"`
	DescribeMaxActions int           `mapstructure:"describe_max_actions"`
	VoteWindow         time.Duration `mapstructure:"vote_window"`
	VoteMaxActions     int           `mapstructure:"vote_max_actions"`
	DefaultWindow      time.Duration `mapstructure:"default_window"`
	DefaultMaxActions  int           `mapstructure:"default_max_actions"`
}

type WordFilterConfig struct {
	SensitiveWords []string `mapstructure:"sensitive_words"`
	Replacement    string   `mapstructure:"replacement"`
}

type WordBankConfig struct {
	FilePath            string  `mapstructure:"file_path"`
	MinSimilarity       float32 `mapstructure:"min_similarity"`
	MaxWordsPerCategory int     `mapstructure:"max_words_per_category"`
}

type AuthConfig struct {
	ProviderBaseURL string        `mapstructure:"provider_base_url"`
	ReturnURL       string        `mapstructure:"return_url"`
	Realm           string        `mapstructure:"realm"`
	TokenSecret     string        `mapstructure:"token_secret"`
	TokenExpire     time.Duration `mapstructure:"token_expire"`
}

type CORSConfig struct {
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.ws_port", 8080)

	viper.SetDefault("game.min_players", 3)
	viper.SetDefault("game.max_players", 12)
	viper.SetDefault("game.describe_time_limit", 60*time.Second)
	viper.SetDefault("game.vote_time_limit", 30*time.Second)
	viper.SetDefault("game.round_delay", 8*time.Second)

	viper.SetDefault("room.heartbeat_interval", 10*time.Second)
	viper.SetDefault("room.max_idle_time", 5*time.Minute)

	viper.SetDefault("security.rate_limits.describe_window", 30*time.Second)
	viper.SetDefault("security.rate_limits.describe_max_actions", 1)
	viper.SetDefault("security.rate_limits.vote_window", 10*time.Second)
	viper.SetDefault("security.rate_limits.vote_max_actions", 1)
	viper.SetDefault("security.rate_limits.default_window", time.Second)
	viper.SetDefault("security.rate_limits.default_max_actions", 10)
	viper.SetDefault("security.word_filter.replacement", "***")

	viper.SetDefault("word_bank.file_path", "wordbank.json")
	viper.SetDefault("word_bank.min_similarity", 0.0)
	viper.SetDefault("word_bank.max_words_per_category", 0)

	viper.SetDefault("cors.allow_all_origins", true)

	viper.SetDefault("auth.provider_base_url", "https://fishpi.cn")
	viper.SetDefault("auth.return_url", "https://undercover.example.com/auth/callback")
	viper.SetDefault("auth.realm", "https://undercover.example.com")
	viper.SetDefault("auth.token_expire", 24*time.Hour)
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaults()
	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}
