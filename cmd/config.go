package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/logger"
)

// InitConfig initializes Viper configuration.
// It supports reading from config files (config.yaml) and environment variables.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/gridloss/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/gridloss/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables, e.g. GRIDLOSS_DB_HOST
	viper.SetEnvPrefix("GRIDLOSS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	return logger.NewWithLevel(logger.ParseLevel(viper.GetString("log.level")))
}

// dbConfig reads the database settings shared by every command.
func dbConfig(log *slog.Logger) *store.DBConfig {
	return &store.DBConfig{
		Logger:   log,
		Driver:   viper.GetString("db.driver"),
		Path:     viper.GetString("db.path"),
		Host:     viper.GetString("db.host"),
		Port:     viper.GetInt("db.port"),
		User:     viper.GetString("db.user"),
		Password: viper.GetString("db.password"),
		DBName:   viper.GetString("db.name"),
		SSLMode:  viper.GetString("db.sslmode"),
	}
}

var scenarioKeys = []grid.Scenario{
	grid.ScenarioNormal,
	grid.ScenarioLowVoltage,
	grid.ScenarioHighLoss,
	grid.ScenarioTheft,
	grid.ScenarioEquipmentFault,
	grid.ScenarioLineFault,
}

// loadParams overlays the simulation.* settings on the default parameters and
// validates the result.
func loadParams() (grid.Params, error) {
	p := grid.DefaultParams()

	if viper.IsSet("simulation.scenarios") {
		table := make(grid.ScenarioTable, 0, len(scenarioKeys))
		for _, sc := range scenarioKeys {
			table = append(table, grid.ScenarioWeight{
				Scenario:    sc,
				Probability: viper.GetFloat64("simulation.scenarios." + string(sc)),
			})
		}
		p.Scenarios = table
	}

	thresholds := map[string]*float64{
		"low_voltage":      &p.Thresholds.LowVoltage,
		"high_voltage":     &p.Thresholds.HighVoltage,
		"normal_loss_pct":  &p.Thresholds.NormalLossPct,
		"theft_loss_pct":   &p.Thresholds.TheftLossPct,
		"warning_loss_pct": &p.Thresholds.WarningLossPct,
	}
	for key, dst := range thresholds {
		if viper.IsSet("simulation.thresholds." + key) {
			*dst = viper.GetFloat64("simulation.thresholds." + key)
		}
	}

	if viper.IsSet("simulation.rate_per_kwh") {
		rate, err := decimal.NewFromString(viper.GetString("simulation.rate_per_kwh"))
		if err != nil {
			return grid.Params{}, fmt.Errorf("invalid simulation.rate_per_kwh: %w", err)
		}
		p.RatePerKwh = rate
	}

	if viper.IsSet("simulation.hours_per_day") {
		p.HoursPerDay = viper.GetInt("simulation.hours_per_day")
	}
	if viper.IsSet("simulation.days_per_month") {
		p.DaysPerMonth = viper.GetInt("simulation.days_per_month")
	}

	if err := p.Validate(); err != nil {
		return grid.Params{}, fmt.Errorf("invalid simulation parameters: %w", err)
	}

	return p, nil
}
