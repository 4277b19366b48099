package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config captures everything needed to run the publishing pipeline. Values
// are resolved as defaults < config file < MAIL2SITE_* environment < flags.
type Config struct {
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string

	AuthorizedSender string

	SiteDir   string
	PagesDir  string
	ImagesDir string
	IndexPath string

	DefaultImage        string
	DescriptionTemplate string
	MaxTitlePrefixLen   int
	MaxSlugLen          int

	GitEnabled   bool
	CommitAuthor string
	CommitEmail  string

	IdleRefresh      time.Duration
	ReconnectBackoff time.Duration
	PollInterval     time.Duration
	SearchWindow     time.Duration

	StateDir string
	LogLevel string
	LogDir   string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a config file (YAML or JSON)")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to MAIL2SITE_IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("folder", "INBOX", "Mailbox folder to monitor")
	flags.String("authorized-sender", "", "Only messages from this address are processed")
	flags.String("site-dir", ".", "Root of the static site checkout")
	flags.String("pages-dir", "", "Pages directory (default <site-dir>/Pages)")
	flags.String("images-dir", "", "Images directory (default <site-dir>/images)")
	flags.String("index-path", "", "Homepage document (default <site-dir>/index.html)")
	flags.String("default-image", "images/python.jpg", "Fallback tile image")
	flags.String("description-template", "Learn about %s on this site", "Fallback tile description, %s is the page title")
	flags.Int("max-title-prefix-len", 20, "Cap on the title prefix used in saved media filenames")
	flags.Int("max-slug-len", 50, "Cap on derived page filenames, before the .html suffix")
	flags.Bool("git", true, "Commit and push published artifacts")
	flags.String("commit-author", "mail2site", "Author name for automated commits")
	flags.String("commit-email", "mail2site@localhost", "Author email for automated commits")
	flags.Duration("idle-refresh", 29*time.Minute, "Re-issue the IDLE wait before the server's idle ceiling")
	flags.Duration("reconnect-backoff", 30*time.Second, "Wait before a listener reconnect attempt")
	flags.Duration("poll-interval", 30*time.Second, "Fallback polling interval")
	flags.Duration("search-window", 24*time.Hour, "How far back each mailbox search looks")
	flags.String("state-dir", "", "Directory for the processed-message file")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
}

// Load resolves the configuration for a command invocation.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("mail2site")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return Config{}, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	siteDir := filepath.Clean(v.GetString("site-dir"))
	cfg := Config{
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		Folder:             v.GetString("folder"),
		AuthorizedSender:   v.GetString("authorized-sender"),
		SiteDir:            siteDir,
		PagesDir:           v.GetString("pages-dir"),
		ImagesDir:          v.GetString("images-dir"),
		IndexPath:          v.GetString("index-path"),
		DefaultImage:        v.GetString("default-image"),
		DescriptionTemplate: v.GetString("description-template"),
		MaxTitlePrefixLen:   v.GetInt("max-title-prefix-len"),
		MaxSlugLen:          v.GetInt("max-slug-len"),
		GitEnabled:          v.GetBool("git"),
		CommitAuthor:        v.GetString("commit-author"),
		CommitEmail:         v.GetString("commit-email"),
		IdleRefresh:         v.GetDuration("idle-refresh"),
		ReconnectBackoff:    v.GetDuration("reconnect-backoff"),
		PollInterval:        v.GetDuration("poll-interval"),
		SearchWindow:        v.GetDuration("search-window"),
		StateDir:            v.GetString("state-dir"),
		LogLevel:            strings.ToLower(v.GetString("log-level")),
	}
	cfg.LogDir = v.GetString("log-dir")

	if cfg.PagesDir == "" {
		cfg.PagesDir = filepath.Join(siteDir, "Pages")
	}
	if cfg.ImagesDir == "" {
		cfg.ImagesDir = filepath.Join(siteDir, "images")
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(siteDir, "index.html")
	}
	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = dir
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	return cfg, nil
}

// ValidateMailbox checks the fields required by commands that talk to the
// IMAP server. Offline commands (process, delete) skip this.
func (c Config) ValidateMailbox() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("--imap-host is required")
	}
	if c.IMAPUser == "" {
		return fmt.Errorf("--imap-user is required")
	}
	if c.IMAPPass == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or MAIL2SITE_IMAP_PASS")
	}
	if c.IMAPPort <= 0 || c.IMAPPort > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if c.AuthorizedSender == "" {
		return fmt.Errorf("--authorized-sender is required")
	}
	return c.ValidateSite()
}

// ValidateSite checks the fields every command needs.
func (c Config) ValidateSite() error {
	if c.SiteDir == "" {
		return fmt.Errorf("--site-dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", c.LogLevel)
	}
	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mail2site", "state"), nil
}
