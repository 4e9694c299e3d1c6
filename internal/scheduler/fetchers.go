package scheduler

import (
	"github.com/tanq16/parafetch/internal/config"
	pfftp "github.com/tanq16/parafetch/internal/downloaders/ftp"
	pfhttp "github.com/tanq16/parafetch/internal/downloaders/http"
	pfs3 "github.com/tanq16/parafetch/internal/downloaders/s3"
	"github.com/tanq16/parafetch/internal/utils"
)

// NewFetchers maps URL schemes to their fetcher implementations.
func NewFetchers(cfg config.Config) map[string]utils.Fetcher {
	httpConfig := cfg.HTTP
	httpConfig.HighThreadMode = cfg.Connections > 5
	httpFetcher := pfhttp.NewFetcher(httpConfig)
	return map[string]utils.Fetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
		"ftp":   pfftp.NewFetcher(cfg.FTPTimeout),
		"s3":    pfs3.NewFetcher(cfg.S3.Profile, cfg.S3.Region),
	}
}

// OptionsFrom takes the pool settings from cfg.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		MaxJobs:      cfg.MaxJobs,
		MaxScheduled: cfg.MaxScheduled,
		OnConflict:   cfg.OnConflict,
	}
}
