package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/parafetch/internal/config"
	"github.com/tanq16/parafetch/internal/utils"
)

var (
	configFile    string
	saveDir       string
	connections   int
	maxJobs       int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	onConflict    string
	debug         bool
)

var ParafetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "parafetch",
	Short:   "Parafetch is a concurrent download manager for HTTP, FTP and S3",
	Version: ParafetchVersion,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVarP(&saveDir, "dir", "d", ".", "Directory to save downloads in")
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", utils.DefaultWorkers, "Number of connections per download (above 5 enables high-thread-mode)")
	rootCmd.PersistentFlags().IntVar(&maxJobs, "max-jobs", 10, "Number of downloads running at once")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&onConflict, "on-conflict", string(utils.CollisionOverwrite), "What to do when the file exists: overwrite or rename")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// loadConfig layers defaults, the config file, PARAFETCH_ environment
// variables and explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	path := configFile
	if path == "" {
		if p := config.DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.SaveDir = saveDir
	}
	if flags.Changed("connections") {
		cfg.Connections = connections
	}
	if flags.Changed("max-jobs") {
		cfg.MaxJobs = maxJobs
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = timeout
		cfg.FTPTimeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.HTTP.KATimeout = kaTimeout
	}
	if flags.Changed("user-agent") || cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = userAgent
	}
	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	if flags.Changed("proxy") {
		cfg.HTTP.ProxyURL = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.HTTP.ProxyURL)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.ProxyURL = parsedProxy.String()
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		cfg.HTTP.Headers[k] = v
	}
	if flags.Changed("on-conflict") {
		cfg.OnConflict = utils.CollisionPolicy(onConflict)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
