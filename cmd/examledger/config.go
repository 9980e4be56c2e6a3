package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/service/session"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultVerifierAddr = "http://localhost:3000"
	defaultExamAddr     = "http://localhost:4000/exam"
	defaultEnvironment  = logger.EnvProduction
	defaultCodePrefix   = "UTBK"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the examledger service will be run
	ListenAddr string

	// Identity verification collaborator address
	VerifierAddr string

	// Exam application base URL used to build token handoff links
	ExamAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Access tokens are signed with symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Prefix of generated exam token codes
	CodePrefix string

	// Sessions idle longer than this are ended
	InactivityWindow time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		ListenAddr:       defaultListenAddr,
		VerifierAddr:     defaultVerifierAddr,
		ExamAddr:         defaultExamAddr,
		Environment:      defaultEnvironment,
		CodePrefix:       defaultCodePrefix,
		InactivityWindow: session.DefaultInactivityWindow,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"VERIFIER_ADDRESS":  setString(&c.VerifierAddr),
		"EXAM_ADDRESS":      setString(&c.ExamAddr),
		"ENVIRONMENT":       setString(&c.Environment),
		"CODE_PREFIX":       setString(&c.CodePrefix),
		"INACTIVITY_WINDOW": setDuration(&c.InactivityWindow),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("examledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.VerifierAddr, "verifier", "r", c.VerifierAddr, "Identity verifier address")
	fs.StringVarP(&c.ExamAddr, "exam", "x", c.ExamAddr, "Exam application base URL")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.CodePrefix, "code-prefix", c.CodePrefix, "Token code prefix")
	fs.DurationVarP(&c.InactivityWindow, "inactivity-window", "w", c.InactivityWindow, "Idle time before a session is ended")

	return fs.Parse(args)
}
