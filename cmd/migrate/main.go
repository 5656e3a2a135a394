package main

import (
	"flag"
	"strings"

	"support360/internal/config"
	"support360/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// migrate creates the snapshot slot table for the sqlite and postgres drivers.
func main() {
	configFile := flag.String("config", "", "config file (default is ./config.yml)")
	driver := flag.String("driver", "", "override storage.driver (sqlite or postgres)")
	flag.Parse()

	_ = godotenv.Load()
	v := viper.GetViper()
	config.SetDefaults(v)
	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}

	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres":
	default:
		logrus.Fatalf("storage.driver %q has no schema to migrate; use sqlite or postgres", cfg.Storage.Driver)
	}

	db, err := store.OpenDatabase(cfg, logrus.StandardLogger())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	logrus.Info("Starting database migration...")
	if err := store.Migrate(db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logrus.Info("Database migration completed successfully")
}
