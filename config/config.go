package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Version  string `yaml:"Version" validate:"required"`
	LogLevel string `yaml:"LogLevel" validate:"required"`

	*Telegram `yaml:"Telegram" validate:"required"`
	*DB       `yaml:"DB" validate:"required"`
	*Jobs     `yaml:"Jobs" validate:"required"`
}

type Telegram struct {
	Token string `yaml:"Token" validate:"required"`
	// SuperAdminID can never be banned, demoted or overridden by the
	// stored allow-list.
	SuperAdminID int64 `yaml:"SuperAdminID" validate:"required"`
}

type DB struct {
	Host     string `yaml:"Host" validate:"required"`
	Port     int    `yaml:"Port" validate:"required"`
	User     string `yaml:"User" validate:"required"`
	Password string `yaml:"Password" validate:"required"`
	Name     string `yaml:"Name" validate:"required"`
	SSL      bool   `yaml:"SSL"`
}

type Jobs struct {
	// Endpoint receives {"jobId": N} for every inserted background job.
	Endpoint string `yaml:"Endpoint" validate:"required,url"`
}

// Create PostgreSQL database connection string
func (db *DB) ConnectionString() string {
	uri := fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s",
		db.Host, db.Port,
		db.User, db.Name,
		db.Password,
	)

	if db.SSL {
		uri += " sslmode=require"
	} else {
		uri += " sslmode=disable"
	}

	return uri
}

// Init new config with validation. A .env file next to the process is
// loaded first and ${VAR} references in the yaml are expanded, so secrets
// stay out of the config file.
func NewConfig(p string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&c); err != nil {
		return nil, err
	}

	return &c, nil
}
