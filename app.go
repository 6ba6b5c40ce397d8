package main

import (
	"fmt"

	"github.com/spf13/viper"

	"another-i/db"
	"another-i/store"
	"another-i/utils"
)

// app holds what every command opens: config, log, database and state
type app struct {
	config *utils.Config
	logger *utils.Logger
	db     *db.DB
	state  *store.State
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it
func loadConfig() (*utils.Config, error) {
	configPath, err := utils.EnsureDefaultConfig(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to create default config: %w", err)
	}
	config, err := utils.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if addr := viper.GetString("addr"); addr != "" {
		config.Server.Addr = addr
	}
	if dbPath := viper.GetString("db"); dbPath != "" {
		config.Data.DBPath = dbPath
	}
	if logPath := viper.GetString("log"); logPath != "" {
		config.Log.Path = logPath
	}
	if viper.GetBool("debug") {
		config.Log.Debug = true
	}
	return config, nil
}

func openApp() (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logPath := config.Log.Path
	if logPath == "" {
		logPath = utils.GetLogPath()
	}
	logger, err := utils.NewLogger(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDebug(config.Log.Debug)
	logger.Info("Starting Another I v%s", version)

	database, err := db.New(config.Data.DBPath)
	if err != nil {
		logger.Error("Failed to initialize database: %v", err)
		logger.Close()
		return nil, err
	}
	logger.Info("Database initialized: %s", config.Data.DBPath)

	state := store.NewState(store.NewRepository(database, logger), logger)
	return &app{config: config, logger: logger, db: database, state: state}, nil
}

// Close releases the database and the log file
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
