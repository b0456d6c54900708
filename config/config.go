package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode   string `mapstructure:"mode"`
	Dotenv string `mapstructure:"dotenv"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	}
	LLM struct {
		Model          string        `mapstructure:"model"`
		EmbeddingModel string        `mapstructure:"embeddingModel"`
		Temperature    float32       `mapstructure:"temperature"`
		CallTimeout    time.Duration `mapstructure:"callTimeout"`
	} `mapstructure:"llm"`
	Dialogue struct {
		MaxTurns          int `mapstructure:"maxTurns"`
		ExtractionRetries int `mapstructure:"extractionRetries"`
	} `mapstructure:"dialogue"`
	Planner struct {
		MaxAttempts int   `mapstructure:"maxAttempts"`
		MealHours   []int `mapstructure:"mealHours"`
	} `mapstructure:"planner"`
	Scoring struct {
		SafetyWeight float64 `mapstructure:"safetyWeight"`
		SafetyMin    float64 `mapstructure:"safetyMin"`
		SafetyMax    float64 `mapstructure:"safetyMax"`
	} `mapstructure:"scoring"`
	Export struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"export"`
	Session struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"session"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
