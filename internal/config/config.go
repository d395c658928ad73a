// Package config содержит логику чтения конфигурации платформы.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации платформы.
// Правила вывода средств и ставка заработка без уровня заданы
// конфигурацией, а не кодом операций.
type Config struct {
	RunAddress      string
	DatabaseURI     string
	AuthSecret      string
	Location        *time.Location
	MinWithdrawal   decimal.Decimal
	WithdrawOpen    int // минуты от полуночи, включительно
	WithdrawClose   int // минуты от полуночи, включительно
	DefaultEarnings decimal.Decimal
}

type rawConfig struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	AuthSecret      string `env:"AUTH_SECRET"`
	TimeZone        string `env:"TIME_ZONE"`
	MinWithdrawal   string `env:"MIN_WITHDRAWAL"`
	WithdrawOpen    string `env:"WITHDRAW_OPEN"`
	WithdrawClose   string `env:"WITHDRAW_CLOSE"`
	DefaultEarnings string `env:"DEFAULT_TASK_EARNINGS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значение из окружения имеет приоритет над флагом.
func Parse() (*Config, error) {
	raw := &rawConfig{}

	if err := env.Parse(raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := raw.RunAddress
	envDatabaseURI := raw.DatabaseURI
	envAuthSecret := raw.AuthSecret

	flag.StringVar(&raw.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&raw.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&raw.AuthSecret, "s", "", "secret key for auth cookies")

	flag.Parse()

	if envRunAddress != "" {
		raw.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		raw.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		raw.AuthSecret = envAuthSecret
	}

	if raw.RunAddress == "" {
		raw.RunAddress = "localhost:8080"
	}

	return build(raw)
}

func build(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		RunAddress:  raw.RunAddress,
		DatabaseURI: raw.DatabaseURI,
		AuthSecret:  raw.AuthSecret,
	}

	loc := time.Local
	if raw.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(raw.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("load time zone: %w", err)
		}
	}
	cfg.Location = loc

	var err error
	cfg.MinWithdrawal, err = parseAmount(raw.MinWithdrawal, "2500")
	if err != nil {
		return nil, fmt.Errorf("min withdrawal: %w", err)
	}

	cfg.DefaultEarnings, err = parseAmount(raw.DefaultEarnings, "80.00")
	if err != nil {
		return nil, fmt.Errorf("default task earnings: %w", err)
	}

	cfg.WithdrawOpen, err = parseClock(raw.WithdrawOpen, "09:00")
	if err != nil {
		return nil, fmt.Errorf("withdraw open: %w", err)
	}

	cfg.WithdrawClose, err = parseClock(raw.WithdrawClose, "17:00")
	if err != nil {
		return nil, fmt.Errorf("withdraw close: %w", err)
	}

	if cfg.WithdrawClose < cfg.WithdrawOpen {
		return nil, fmt.Errorf("withdrawal window closes before it opens")
	}

	return cfg, nil
}

func parseAmount(s, fallback string) (decimal.Decimal, error) {
	if s == "" {
		s = fallback
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative", s)
	}
	return v, nil
}

// parseClock разбирает время вида "09:00" в минуты от полуночи.
func parseClock(s, fallback string) (int, error) {
	if s == "" {
		s = fallback
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("parse clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return h*60 + m, nil
}
