package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持します。
type Config struct {
	HTTP          HTTPConfig          `mapstructure:"http"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Indices       IndicesConfig       `mapstructure:"indices"`
	Search        SearchConfig        `mapstructure:"search"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// HTTPConfig はHTTPサーバーの設定です。
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// LoggerConfig はロガーの設定です。Mode は development か production です。
type LoggerConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// ElasticsearchConfig はElasticsearchの接続設定です。
type ElasticsearchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	CACertPath    string   `mapstructure:"caCertPath"`
	Transport     string   `mapstructure:"transport"`
	VerifyIndices bool     `mapstructure:"verifyIndices"`
}

// IndicesConfig はコンテンツ種別ごとのインデックス名です。
type IndicesConfig struct {
	Twitter   string `mapstructure:"twitter"`
	Instagram string `mapstructure:"instagram"`
	Facebook  string `mapstructure:"facebook"`
}

// SearchConfig は検索処理の設定です。
type SearchConfig struct {
	DefaultSize int `mapstructure:"defaultSize"`
}

// ObservabilityConfig はトレースとメトリクスの設定です。
type ObservabilityConfig struct {
	ServiceName     string `mapstructure:"serviceName"`
	TracingEndpoint string `mapstructure:"tracingEndpoint"`
	TracingInsecure bool   `mapstructure:"tracingInsecure"`
}

// Load は path ディレクトリの config.yaml と POSTSEARCH_ 接頭辞の環境変数から設定を読み込みます。
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http.port", 8080)
	v.SetDefault("logger.mode", "development")
	v.SetDefault("logger.level", "info")
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.caCertPath", "")
	v.SetDefault("elasticsearch.transport", "typed")
	v.SetDefault("elasticsearch.verifyIndices", true)
	v.SetDefault("indices.twitter", "twitter_posts")
	v.SetDefault("indices.instagram", "instagram_posts")
	v.SetDefault("indices.facebook", "facebook_posts")
	v.SetDefault("search.defaultSize", 5)
	v.SetDefault("observability.serviceName", "post-search")
	v.SetDefault("observability.tracingEndpoint", "")
	v.SetDefault("observability.tracingInsecure", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("POSTSEARCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 環境変数のカンマ区切り文字列はスライスに変換されないため手動で分割する
	if addrs := v.GetString("elasticsearch.addresses"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}

	return &cfg, nil
}
