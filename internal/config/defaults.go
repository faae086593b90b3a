package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/chikai/data/db/events.db"
	}
	if cfg.Storage.CatalogIndexPath == "" {
		cfg.Storage.CatalogIndexPath = "/usr/local/var/chikai/data/indices/catalog"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/chikai/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "forest"
	}
	if cfg.Index.TreeCount == 0 {
		cfg.Index.TreeCount = 10
	}
	if cfg.Index.DefaultK == 0 {
		cfg.Index.DefaultK = 10
	}
	if cfg.Index.MaxK == 0 {
		cfg.Index.MaxK = 100
	}
	if cfg.Refresh.CronSpec == "" {
		cfg.Refresh.CronSpec = "@every 15m"
	}
	if cfg.Refresh.ManualInterval == 0 {
		cfg.Refresh.ManualInterval = 10 * time.Second
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".json", ".jsonl"}
	}
}
