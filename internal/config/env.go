package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/roach88/plc/internal/notify"
)

// Environment variables read by SMTPFromEnv.
const (
	EnvSMTPHost     = "PLC_SMTP_HOST"
	EnvSMTPPort     = "PLC_SMTP_PORT"
	EnvSMTPUsername = "PLC_SMTP_USERNAME"
	EnvSMTPPassword = "PLC_SMTP_PASSWORD"
	EnvSMTPFrom     = "PLC_SMTP_FROM"
	EnvSMTPSubject  = "PLC_SMTP_SUBJECT"
)

// LoadEnv loads .env files into the process environment. Variables already
// set are not overridden. Missing files are an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// SMTPFromEnv builds the SMTP notifier settings from PLC_SMTP_* variables
// and the application recipients.
func SMTPFromEnv(recipients []string) (notify.SMTPConfig, error) {
	cfg := notify.SMTPConfig{
		Host:     os.Getenv(EnvSMTPHost),
		Username: os.Getenv(EnvSMTPUsername),
		Password: os.Getenv(EnvSMTPPassword),
		From:     os.Getenv(EnvSMTPFrom),
		Subject:  os.Getenv(EnvSMTPSubject),
		To:       recipients,
	}
	if raw := os.Getenv(EnvSMTPPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return notify.SMTPConfig{}, fmt.Errorf("%s: %w", EnvSMTPPort, err)
		}
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return notify.SMTPConfig{}, err
	}
	return cfg, nil
}
