// Package config はYAML設定ファイルと環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/autosign/internal/timetable"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	User     UserConfig     `yaml:"user"`
	Mail     MailConfig     `yaml:"mail"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Check    CheckConfig    `yaml:"check"`
	Portal   PortalConfig   `yaml:"portal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// UserConfig はポータルの認証情報。
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MailConfig は通知メールの送信設定。Hostが空の場合、通知はログにのみ出力する。
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// From が空の場合はUserを使う。
	From string `yaml:"from"`
	// Recipient が空の場合はUserに送る。
	Recipient string `yaml:"recipient"`
	// SendWarningMail は打刻確認で記録が見つからない場合に警告を送るか。
	SendWarningMail bool `yaml:"send_warning_mail"`
}

// ScheduleConfig は打刻計画の設定。
type ScheduleConfig struct {
	Candidates    int           `yaml:"candidates"`
	LookaheadDays int           `yaml:"lookahead_days"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// CheckConfig は打刻確認ジョブの設定。Schedulesが空の場合は無効。
type CheckConfig struct {
	Schedules []string `yaml:"schedules"`
}

// PortalConfig はポータルへの接続設定。
type PortalConfig struct {
	BaseURL         string        `yaml:"base_url"`
	LoginURL        string        `yaml:"login_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RequestInterval time.Duration `yaml:"request_interval"`
	UserAgent       string        `yaml:"user_agent"`
}

// MetricsConfig は運用エンドポイントの設定。Addrが空の場合は起動しない。
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default はすべての項目にデフォルト値を設定したConfigを返す。
func Default() *Config {
	return &Config{
		Mail: MailConfig{
			Port: 587,
		},
		Schedule: ScheduleConfig{
			Candidates:    timetable.DefaultCandidates,
			LookaheadDays: 7,
			ActionTimeout: 2 * time.Minute,
		},
		Check: CheckConfig{
			Schedules: []string{"30 12 * * 1-5", "30 21 * * 1-5"},
		},
		Portal: PortalConfig{
			BaseURL:  "https://my.ntu.edu.tw",
			LoginURL: "https://web2.cc.ntu.edu.tw",
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load はpathのYAMLファイルを読み込み、環境変数で上書きしたConfigを返す。
// pathが空の場合はデフォルト値と環境変数のみを使う。
// 必須項目が未設定の場合や値が不正な場合はエラーを返す。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.User.Username = getEnvString("AUTOSIGN_USERNAME", c.User.Username)
	c.User.Password = getEnvString("AUTOSIGN_PASSWORD", c.User.Password)
	c.Mail.Host = getEnvString("AUTOSIGN_MAIL_HOST", c.Mail.Host)
	c.Mail.Port = getEnvInt("AUTOSIGN_MAIL_PORT", c.Mail.Port)
	c.Mail.User = getEnvString("AUTOSIGN_MAIL_USER", c.Mail.User)
	c.Mail.Password = getEnvString("AUTOSIGN_MAIL_PASSWORD", c.Mail.Password)
	c.Mail.Recipient = getEnvString("AUTOSIGN_MAIL_RECIPIENT", c.Mail.Recipient)
	c.Mail.SendWarningMail = getEnvBool("AUTOSIGN_SEND_WARNING_MAIL", c.Mail.SendWarningMail)
	c.Schedule.Candidates = getEnvInt("AUTOSIGN_CANDIDATES", c.Schedule.Candidates)
	c.Portal.Timeout = getEnvDuration("AUTOSIGN_HTTP_TIMEOUT", c.Portal.Timeout)
	c.Metrics.Addr = getEnvString("AUTOSIGN_METRICS_ADDR", c.Metrics.Addr)
	c.Log.Level = getEnvString("AUTOSIGN_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("AUTOSIGN_LOG_FORMAT", c.Log.Format)
}

// Validate は設定値を検証する。検出したすべての問題をまとめて返す。
// パスワードは対話入力で補えるため必須としない。
func (c *Config) Validate() error {
	var missing []string
	if c.User.Username == "" {
		missing = append(missing, "user.username")
	}
	if c.Mail.Host != "" && c.Mail.User == "" {
		missing = append(missing, "mail.user")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration is not set: %v", missing)
	}

	var errs []error
	if c.Mail.Host != "" && (c.Mail.Port < 1 || c.Mail.Port > 65535) {
		errs = append(errs, fmt.Errorf("mail.port is out of range: %d", c.Mail.Port))
	}
	if c.Schedule.Candidates < 1 || c.Schedule.Candidates > timetable.MaxCandidates {
		errs = append(errs, fmt.Errorf("schedule.candidates must be between 1 and %d: %d",
			timetable.MaxCandidates, c.Schedule.Candidates))
	}
	if c.Schedule.LookaheadDays < 1 {
		errs = append(errs, fmt.Errorf("schedule.lookahead_days must be positive: %d", c.Schedule.LookaheadDays))
	}
	if c.Schedule.ActionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("schedule.action_timeout must be positive: %s", c.Schedule.ActionTimeout))
	}
	if c.Portal.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("portal.timeout must be positive: %s", c.Portal.Timeout))
	}
	if c.Portal.RequestInterval < 0 {
		errs = append(errs, fmt.Errorf("portal.request_interval must not be negative: %s", c.Portal.RequestInterval))
	}
	for _, key := range []struct{ name, value string }{
		{"portal.base_url", c.Portal.BaseURL},
		{"portal.login_url", c.Portal.LoginURL},
	} {
		if err := validateURL(key.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key.name, err))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level is invalid: %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format is invalid: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("absolute http(s) URL required: %q", raw)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
