// Package config loads the defaults of the command line tools from the environment.
//
// Command line flags take precedence over these values.
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sensorable/yolotv"
)

// Config holds the tool defaults.
type Config struct {
	SaveDir    string  // YOLOTV_SAVE_DIR
	Prefix     string  // YOLOTV_PREFIX
	TrainRatio float64 // YOLOTV_TRAIN_RATIO
	NormRatio  float64 // YOLOTV_NORM_RATIO
	Seed       int64   // YOLOTV_SEED
	Workers    int     // YOLOTV_WORKERS
	ImageExt   string  // YOLOTV_IMAGE_EXT, the image extension for empty annotations.
}

// LoadEnvFile loads variables from the .env file at path, if it exists. Variables that are
// already set are not overwritten.
func LoadEnvFile(path string) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: cannot load %s: %v", path, err)
	}
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		SaveDir:    getEnvOrDefault("YOLOTV_SAVE_DIR", "yolo_trainval"),
		Prefix:     getEnvOrDefault("YOLOTV_PREFIX", "data/"),
		TrainRatio: getEnvAsFloatOrDefault("YOLOTV_TRAIN_RATIO", 0.8),
		NormRatio:  getEnvAsFloatOrDefault("YOLOTV_NORM_RATIO", 0.075),
		Seed:       getEnvAsInt64OrDefault("YOLOTV_SEED", yolotv.DefaultSeed),
		Workers:    getEnvAsIntOrDefault("YOLOTV_WORKERS", runtime.NumCPU()),
		ImageExt:   getEnvOrDefault("YOLOTV_IMAGE_EXT", ".jpg"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the value ranges.
func (c *Config) Validate() error {
	if c.SaveDir == "" {
		return fmt.Errorf("YOLOTV_SAVE_DIR must not be empty")
	}
	if c.TrainRatio < 0 || c.TrainRatio > 1 {
		return fmt.Errorf("YOLOTV_TRAIN_RATIO must be in [0, 1], got %v", c.TrainRatio)
	}
	if c.NormRatio < 0 || c.NormRatio > 1 {
		return fmt.Errorf("YOLOTV_NORM_RATIO must be in [0, 1], got %v", c.NormRatio)
	}
	if c.Workers < 1 {
		return fmt.Errorf("YOLOTV_WORKERS must be positive, got %d", c.Workers)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}
