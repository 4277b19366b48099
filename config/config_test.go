package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	RegisterFlags(cmd)
	return cmd
}

func TestLoad_Defaults(t *testing.T) {
	cmd := newTestCommand()

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.IMAPPort != 993 {
		t.Errorf("IMAPPort = %d, want 993", cfg.IMAPPort)
	}
	if cfg.Folder != "INBOX" {
		t.Errorf("Folder = %q, want INBOX", cfg.Folder)
	}
	if cfg.PagesDir != filepath.Join(".", "Pages") {
		t.Errorf("PagesDir = %q", cfg.PagesDir)
	}
	if cfg.IndexPath != filepath.Join(".", "index.html") {
		t.Errorf("IndexPath = %q", cfg.IndexPath)
	}
	if cfg.IdleRefresh != 29*time.Minute {
		t.Errorf("IdleRefresh = %v, want 29m", cfg.IdleRefresh)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.MaxSlugLen != 50 || cfg.MaxTitlePrefixLen != 20 {
		t.Errorf("length caps = (%d, %d), want (50, 20)", cfg.MaxSlugLen, cfg.MaxTitlePrefixLen)
	}
	if cfg.StateDir == "" {
		t.Error("StateDir not defaulted")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("MAIL2SITE_FOLDER", "Archive")
	t.Setenv("MAIL2SITE_IMAP_PASS", "s3cret")

	cfg, err := Load(newTestCommand())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Folder != "Archive" {
		t.Errorf("Folder = %q, want env override", cfg.Folder)
	}
	if cfg.IMAPPass != "s3cret" {
		t.Errorf("IMAPPass not taken from environment")
	}
}

func TestLoad_LengthCapsConfigurable(t *testing.T) {
	t.Setenv("MAIL2SITE_MAX_SLUG_LEN", "64")

	cmd := newTestCommand()
	if err := cmd.PersistentFlags().Set("max-title-prefix-len", "12"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxSlugLen != 64 {
		t.Errorf("MaxSlugLen = %d, want env override 64", cfg.MaxSlugLen)
	}
	if cfg.MaxTitlePrefixLen != 12 {
		t.Errorf("MaxTitlePrefixLen = %d, want flag value 12", cfg.MaxTitlePrefixLen)
	}
}

func TestLoad_FlagBeatsEnvironment(t *testing.T) {
	t.Setenv("MAIL2SITE_FOLDER", "Archive")

	cmd := newTestCommand()
	if err := cmd.PersistentFlags().Set("folder", "Sent"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Folder != "Sent" {
		t.Errorf("Folder = %q, want flag value", cfg.Folder)
	}
}

func TestValidateMailbox(t *testing.T) {
	cfg := Config{
		IMAPHost:         "imap.example.com",
		IMAPPort:         993,
		IMAPUser:         "user",
		IMAPPass:         "pass",
		AuthorizedSender: "owner@example.com",
		SiteDir:          ".",
		LogLevel:         "info",
	}
	if err := cfg.ValidateMailbox(); err != nil {
		t.Errorf("ValidateMailbox() error = %v", err)
	}

	missing := cfg
	missing.IMAPPass = ""
	if err := missing.ValidateMailbox(); err == nil {
		t.Error("expected error for missing password")
	}

	badPort := cfg
	badPort.IMAPPort = 70000
	if err := badPort.ValidateMailbox(); err == nil {
		t.Error("expected error for out-of-range port")
	}

	noSender := cfg
	noSender.AuthorizedSender = ""
	if err := noSender.ValidateMailbox(); err == nil {
		t.Error("expected error for missing authorized sender")
	}
}

func TestValidateSite_LogLevel(t *testing.T) {
	cfg := Config{SiteDir: ".", LogLevel: "verbose"}
	if err := cfg.ValidateSite(); err == nil {
		t.Error("expected error for unknown log level")
	}
}
