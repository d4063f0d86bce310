package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"opsalert/internal/domain"
	"opsalert/internal/rules"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "opsalert"
	defaultPollIntervalSec    = 60
	defaultCollectTimeoutSec  = 10
	defaultDispatchTimeoutSec = 10
	defaultHistoryMax         = 10000
	defaultRuleCooldownSec    = 300

	defaultAPIListen  = ":8080"
	defaultHealthPath = "/healthz"
	defaultReadyPath  = "/readyz"

	defaultNATSURL       = "nats://127.0.0.1:4222"
	defaultStreamSubject = "opsalert.alerts"
	defaultSMTPPort      = 587
)

// Config is the validated runtime configuration snapshot.
// Params: decoded and normalized sections from TOML sources.
// Returns: complete service settings with rules in name order.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Log        LogConfig        `toml:"log"`
	Collector  CollectorConfig  `toml:"collector"`
	API        APIConfig        `toml:"api"`
	Escalation EscalationConfig `toml:"escalation"`
	Notify     NotifyConfig     `toml:"notify"`
	Rule       []RuleConfig     `toml:"rule"`
}

// rawConfig mirrors the TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: raw rule map keyed by rule name.
type rawConfig struct {
	Service    ServiceConfig            `toml:"service"`
	Log        LogConfig                `toml:"log"`
	Collector  CollectorConfig          `toml:"collector"`
	API        APIConfig                `toml:"api"`
	Escalation EscalationConfig         `toml:"escalation"`
	Notify     NotifyConfig             `toml:"notify"`
	Rule       map[string]rawRuleConfig `toml:"rule"`
}

// rawRuleConfig stores one rule body from a `[rule.<name>]` table.
// Params: rule fields except the top-level key-derived name.
// Returns: intermediate rule body used for normalization.
type rawRuleConfig struct {
	Name             string   `toml:"name"`
	Metric           string   `toml:"metric"`
	Op               string   `toml:"op"`
	Threshold        float64  `toml:"threshold"`
	EqualsBool       *bool    `toml:"equals_bool"`
	Level            string   `toml:"level"`
	Channels         []string `toml:"channels"`
	CooldownSec      int      `toml:"cooldown_sec"`
	EscalateAfterSec int      `toml:"escalate_after_sec"`
	AutoResolve      bool     `toml:"auto_resolve"`
	Description      string   `toml:"description"`
	DetailKeys       []string `toml:"detail_keys"`
}

// ServiceConfig contains process-level settings.
// Params: name, loop timings, and ledger history cap.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name               string `toml:"name"`
	PollIntervalSec    int    `toml:"poll_interval_sec"`
	CollectTimeoutSec  int    `toml:"collect_timeout_sec"`
	DispatchTimeoutSec int    `toml:"dispatch_timeout_sec"`
	HistoryMax         int    `toml:"history_max"`
	BuiltinRules       *bool  `toml:"builtin_rules"`
}

// PollInterval returns the monitor loop cadence.
// Params: none.
// Returns: interval between evaluation cycles.
func (s ServiceConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

// CollectTimeout returns the per-cycle snapshot collection bound.
// Params: none.
// Returns: collection timeout duration.
func (s ServiceConfig) CollectTimeout() time.Duration {
	return time.Duration(s.CollectTimeoutSec) * time.Second
}

// DispatchTimeout returns the per-channel delivery bound.
// Params: none.
// Returns: dispatch timeout duration.
func (s ServiceConfig) DispatchTimeout() time.Duration {
	return time.Duration(s.DispatchTimeoutSec) * time.Second
}

// UseBuiltinRules reports whether the seeded rule catalog applies.
// Params: none.
// Returns: true when no explicit toggle disables built-in rules.
func (s ServiceConfig) UseBuiltinRules() bool {
	return s.BuiltinRules == nil || *s.BuiltinRules
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// CollectorConfig configures the HTTP metrics snapshot source.
// Params: endpoint URL, request timeout, and static headers.
// Returns: collector settings for the monitor loop.
type CollectorConfig struct {
	URL        string            `toml:"url"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// Timeout returns the snapshot request timeout.
// Params: none.
// Returns: timeout duration.
func (c CollectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// APIConfig configures the operator HTTP surface.
// Params: enable flag, listen address, and probe paths.
// Returns: API server settings.
type APIConfig struct {
	Enabled    bool   `toml:"enabled"`
	Listen     string `toml:"listen"`
	HealthPath string `toml:"health_path"`
	ReadyPath  string `toml:"ready_path"`
}

// EscalationConfig controls derived escalation alerts.
// Params: channel names always added to escalated alerts.
// Returns: escalation routing settings.
type EscalationConfig struct {
	AlwaysChannels []string `toml:"always_channels"`
}

// NotifyConfig defines outbound delivery channels.
// Params: per-channel transport settings.
// Returns: notification controls.
type NotifyConfig struct {
	Email   EmailNotifier   `toml:"email"`
	Chat    ChatNotifier    `toml:"chat"`
	Webhook WebhookNotifier `toml:"webhook"`
	Tracker TrackerNotifier `toml:"tracker"`
	Archive ArchiveNotifier `toml:"archive"`
	Stream  StreamNotifier  `toml:"stream"`
}

// NotifyRetry configures outbound delivery retries for one channel.
// Params: retry toggle, backoff strategy, and attempt limits.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled     bool   `toml:"enabled"`
	Backoff     string `toml:"backoff"`
	InitialMS   int    `toml:"initial_ms"`
	MaxMS       int    `toml:"max_ms"`
	MaxAttempts int    `toml:"max_attempts"`
}

// EmailNotifier defines SMTP submission settings.
// Params: enable flag, server address, sender/recipients, credentials, and retry policy.
// Returns: email sender configuration.
type EmailNotifier struct {
	Enabled  bool        `toml:"enabled"`
	Host     string      `toml:"host"`
	Port     int         `toml:"port"`
	From     string      `toml:"from"`
	To       []string    `toml:"to"`
	Username string      `toml:"username"`
	Password string      `toml:"password"`
	Retry    NotifyRetry `toml:"retry"`
}

// ChatNotifier defines Telegram chat channel settings.
// Params: enable flag, bot token, chat ID, optional API base, and retry policy.
// Returns: chat sender configuration.
type ChatNotifier struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	ChatID   string      `toml:"chat_id"`
	APIBase  string      `toml:"api_base"`
	Retry    NotifyRetry `toml:"retry"`
}

// WebhookNotifier defines the generic outbound HTTP endpoint.
// Params: URL, method, timeout, static headers, optional signing secret, and retry policy.
// Returns: webhook sender configuration.
type WebhookNotifier struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Secret     string            `toml:"secret"`
	Retry      NotifyRetry       `toml:"retry"`
}

// TrackerNotifier defines the error-tracker capture endpoint.
// Params: URL, auth token, timeout, minimum forwarded level, and retry policy.
// Returns: tracker sender configuration.
type TrackerNotifier struct {
	Enabled    bool        `toml:"enabled"`
	URL        string      `toml:"url"`
	Token      string      `toml:"token"`
	TimeoutSec int         `toml:"timeout_sec"`
	MinLevel   string      `toml:"min_level"`
	Retry      NotifyRetry `toml:"retry"`
}

// ArchiveNotifier defines the local SQLite alert archive.
// Params: enable flag, database file path, and retry policy.
// Returns: archive sender configuration.
type ArchiveNotifier struct {
	Enabled bool        `toml:"enabled"`
	Path    string      `toml:"path"`
	Retry   NotifyRetry `toml:"retry"`
}

// StreamNotifier defines the JetStream publish channel.
// Params: enable flag, NATS URLs, subject, and retry policy.
// Returns: stream sender configuration.
type StreamNotifier struct {
	Enabled bool        `toml:"enabled"`
	URL     []string    `toml:"url"`
	Subject string      `toml:"subject"`
	Retry   NotifyRetry `toml:"retry"`
}

// RuleConfig describes one alert rule declared in TOML.
// Params: condition fields, severity, routing, and timing controls.
// Returns: runtime rule definition keyed by table name.
type RuleConfig struct {
	Name             string   `toml:"name"`
	Metric           string   `toml:"metric"`
	Op               string   `toml:"op"`
	Threshold        float64  `toml:"threshold"`
	EqualsBool       *bool    `toml:"equals_bool"`
	Level            string   `toml:"level"`
	Channels         []string `toml:"channels"`
	CooldownSec      int      `toml:"cooldown_sec"`
	EscalateAfterSec int      `toml:"escalate_after_sec"`
	AutoResolve      bool     `toml:"auto_resolve"`
	Description      string   `toml:"description"`
	DetailKeys       []string `toml:"detail_keys"`
}

// Cooldown returns the rule re-fire suppression window.
// Params: none.
// Returns: cooldown duration.
func (r RuleConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSec) * time.Second
}

// EscalateAfter returns the escalation arm delay.
// Params: none.
// Returns: delay duration; zero disables escalation.
func (r RuleConfig) EscalateAfter() time.Duration {
	return time.Duration(r.EscalateAfterSec) * time.Second
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeRawConfig converts the raw TOML model to runtime config.
// Params: decoded raw config from one file.
// Returns: normalized config with rules sorted by name.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service:    raw.Service,
		Log:        raw.Log,
		Collector:  raw.Collector,
		API:        raw.API,
		Escalation: raw.Escalation,
		Notify:     raw.Notify,
	}
	if len(raw.Rule) == 0 {
		return cfg, nil
	}

	names := make([]string, 0, len(raw.Rule))
	for name := range raw.Rule {
		names = append(names, name)
	}
	sort.Strings(names)
	cfg.Rule = make([]RuleConfig, 0, len(names))
	for _, name := range names {
		body := raw.Rule[name]
		if strings.TrimSpace(body.Name) != "" {
			return Config{}, fmt.Errorf("rule.%s.name is not supported; use [rule.%s] key as rule name", name, name)
		}
		cfg.Rule = append(cfg.Rule, RuleConfig{
			Name:             name,
			Metric:           body.Metric,
			Op:               body.Op,
			Threshold:        body.Threshold,
			EqualsBool:       body.EqualsBool,
			Level:            body.Level,
			Channels:         body.Channels,
			CooldownSec:      body.CooldownSec,
			EscalateAfterSec: body.EscalateAfterSec,
			AutoResolve:      body.AutoResolve,
			Description:      body.Description,
			DetailKeys:       body.DetailKeys,
		})
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Fragments merge in lexical file order; later fragments replace
// whole sections they set and override same-named rules.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays a later fragment onto the accumulated config.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasCollectorConfig(src.Collector) {
		dst.Collector = src.Collector
	}
	if src.API != (APIConfig{}) {
		dst.API = src.API
	}
	if len(src.Escalation.AlwaysChannels) > 0 {
		dst.Escalation = src.Escalation
	}
	mergeNotifyConfig(&dst.Notify, src.Notify)
	mergeRules(dst, src.Rule)
}

// hasCollectorConfig reports whether a fragment sets collector fields.
// Params: collector section from one fragment.
// Returns: true when any field is non-zero.
func hasCollectorConfig(cfg CollectorConfig) bool {
	return cfg.URL != "" || cfg.TimeoutSec != 0 || len(cfg.Headers) > 0
}

// mergeNotifyConfig overlays per-channel sections that a fragment sets.
// A channel section is considered set when it enables the channel or
// carries any transport field.
// Params: destination notify config and fragment section.
// Returns: merged channels side-effect in dst.
func mergeNotifyConfig(dst *NotifyConfig, src NotifyConfig) {
	if src.Email.Enabled || src.Email.Host != "" {
		dst.Email = src.Email
	}
	if src.Chat.Enabled || src.Chat.BotToken != "" {
		dst.Chat = src.Chat
	}
	if src.Webhook.Enabled || src.Webhook.URL != "" {
		dst.Webhook = src.Webhook
	}
	if src.Tracker.Enabled || src.Tracker.URL != "" {
		dst.Tracker = src.Tracker
	}
	if src.Archive.Enabled || src.Archive.Path != "" {
		dst.Archive = src.Archive
	}
	if src.Stream.Enabled || len(src.Stream.URL) > 0 || src.Stream.Subject != "" {
		dst.Stream = src.Stream
	}
}

// mergeRules overlays fragment rules by name, keeping name order.
// Params: destination config and fragment rules.
// Returns: merged rule list side-effect in dst.
func mergeRules(dst *Config, src []RuleConfig) {
	if len(src) == 0 {
		return
	}
	byName := make(map[string]RuleConfig, len(dst.Rule)+len(src))
	for _, rule := range dst.Rule {
		byName[rule.Name] = rule
	}
	for _, rule := range src {
		byName[rule.Name] = rule
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	dst.Rule = make([]RuleConfig, 0, len(names))
	for _, name := range names {
		dst.Rule = append(dst.Rule, byName[name])
	}
}

// applyDefaults normalizes unset values before validation.
// Params: config pointer to mutate.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.PollIntervalSec <= 0 {
		cfg.Service.PollIntervalSec = defaultPollIntervalSec
	}
	if cfg.Service.CollectTimeoutSec <= 0 {
		cfg.Service.CollectTimeoutSec = defaultCollectTimeoutSec
	}
	if cfg.Service.DispatchTimeoutSec <= 0 {
		cfg.Service.DispatchTimeoutSec = defaultDispatchTimeoutSec
	}
	if cfg.Service.HistoryMax <= 0 {
		cfg.Service.HistoryMax = defaultHistoryMax
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Collector.TimeoutSec <= 0 {
		cfg.Collector.TimeoutSec = cfg.Service.CollectTimeoutSec
	}

	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = defaultAPIListen
	}
	if strings.TrimSpace(cfg.API.HealthPath) == "" {
		cfg.API.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.API.ReadyPath) == "" {
		cfg.API.ReadyPath = defaultReadyPath
	}

	if cfg.Notify.Email.Port <= 0 {
		cfg.Notify.Email.Port = defaultSMTPPort
	}
	fillNotifyRetryDefaults(&cfg.Notify.Email.Retry)
	if cfg.Notify.Chat.APIBase == "" {
		cfg.Notify.Chat.APIBase = "https://api.telegram.org"
	}
	fillNotifyRetryDefaults(&cfg.Notify.Chat.Retry)
	if cfg.Notify.Webhook.Method == "" {
		cfg.Notify.Webhook.Method = "POST"
	}
	if cfg.Notify.Webhook.TimeoutSec <= 0 {
		cfg.Notify.Webhook.TimeoutSec = 10
	}
	fillNotifyRetryDefaults(&cfg.Notify.Webhook.Retry)
	if cfg.Notify.Tracker.TimeoutSec <= 0 {
		cfg.Notify.Tracker.TimeoutSec = 10
	}
	if cfg.Notify.Tracker.MinLevel == "" {
		cfg.Notify.Tracker.MinLevel = "error"
	}
	fillNotifyRetryDefaults(&cfg.Notify.Tracker.Retry)
	fillNotifyRetryDefaults(&cfg.Notify.Archive.Retry)
	if len(cfg.Notify.Stream.URL) == 0 {
		cfg.Notify.Stream.URL = []string{defaultNATSURL}
	}
	if cfg.Notify.Stream.Subject == "" {
		cfg.Notify.Stream.Subject = defaultStreamSubject
	}
	fillNotifyRetryDefaults(&cfg.Notify.Stream.Retry)

	for i := range cfg.Rule {
		rule := &cfg.Rule[i]
		if rule.CooldownSec == 0 {
			rule.CooldownSec = defaultRuleCooldownSec
		}
		if rule.Level == "" {
			rule.Level = "warning"
		}
	}
}

// fillNotifyRetryDefaults normalizes retry policy fields for one channel.
// Params: retry policy pointer.
// Returns: policy defaults applied in place.
func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if retry == nil {
		return
	}
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 60000
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
}

// validateConfig validates the full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first failing section or rule error.
func validateConfig(cfg Config) error {
	if len(cfg.Rule) == 0 && !cfg.Service.UseBuiltinRules() {
		return errors.New("at least one rule is required when service.builtin_rules=false")
	}
	if strings.TrimSpace(cfg.Collector.URL) == "" {
		return errors.New("collector.url is required")
	}

	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if strings.TrimSpace(cfg.API.Listen) == "" {
			return errors.New("api.listen is required when api.enabled=true")
		}
	}

	for i, name := range cfg.Escalation.AlwaysChannels {
		if _, err := domain.ParseChannel(name); err != nil {
			return fmt.Errorf("escalation.always_channels[%d]: %w", i, err)
		}
	}

	if err := validateNotify(cfg.Notify); err != nil {
		return err
	}

	for _, rule := range cfg.Rule {
		if err := validateRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// validateNotify validates enabled channel transports.
// Params: notify section to validate.
// Returns: first failing channel error.
func validateNotify(cfg NotifyConfig) error {
	if cfg.Email.Enabled {
		if strings.TrimSpace(cfg.Email.Host) == "" {
			return errors.New("notify.email.host is required when notify.email.enabled=true")
		}
		if strings.TrimSpace(cfg.Email.From) == "" {
			return errors.New("notify.email.from is required when notify.email.enabled=true")
		}
		if len(cfg.Email.To) == 0 {
			return errors.New("notify.email.to is required when notify.email.enabled=true")
		}
	}
	if cfg.Chat.Enabled {
		if strings.TrimSpace(cfg.Chat.BotToken) == "" {
			return errors.New("notify.chat.bot_token is required when notify.chat.enabled=true")
		}
		if strings.TrimSpace(cfg.Chat.ChatID) == "" {
			return errors.New("notify.chat.chat_id is required when notify.chat.enabled=true")
		}
	}
	if cfg.Webhook.Enabled && strings.TrimSpace(cfg.Webhook.URL) == "" {
		return errors.New("notify.webhook.url is required when notify.webhook.enabled=true")
	}
	if cfg.Tracker.Enabled {
		if strings.TrimSpace(cfg.Tracker.URL) == "" {
			return errors.New("notify.tracker.url is required when notify.tracker.enabled=true")
		}
		if _, err := domain.ParseLevel(cfg.Tracker.MinLevel); err != nil {
			return fmt.Errorf("notify.tracker.min_level: %w", err)
		}
	}
	if cfg.Archive.Enabled && strings.TrimSpace(cfg.Archive.Path) == "" {
		return errors.New("notify.archive.path is required when notify.archive.enabled=true")
	}
	if cfg.Stream.Enabled {
		if len(cfg.Stream.URL) == 0 {
			return errors.New("notify.stream.url is required when notify.stream.enabled=true")
		}
		for i, url := range cfg.Stream.URL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("notify.stream.url[%d] is empty", i)
			}
		}
		if strings.TrimSpace(cfg.Stream.Subject) == "" {
			return errors.New("notify.stream.subject is required when notify.stream.enabled=true")
		}
	}
	return nil
}

// validateRule validates one rule declaration.
// Params: normalized rule config.
// Returns: error naming the failing field.
func validateRule(rule RuleConfig) error {
	if strings.TrimSpace(rule.Metric) == "" {
		return fmt.Errorf("rule.%s.metric is required", rule.Name)
	}
	if rule.EqualsBool == nil && !rules.IsSupportedOp(rule.Op) {
		return fmt.Errorf("rule.%s.op has unsupported value %q", rule.Name, rule.Op)
	}
	if rule.EqualsBool != nil && rule.Op != "" {
		return fmt.Errorf("rule.%s: op and equals_bool are mutually exclusive", rule.Name)
	}
	if _, err := domain.ParseLevel(rule.Level); err != nil {
		return fmt.Errorf("rule.%s.level: %w", rule.Name, err)
	}
	if len(rule.Channels) == 0 {
		return fmt.Errorf("rule.%s.channels is required", rule.Name)
	}
	for i, name := range rule.Channels {
		if _, err := domain.ParseChannel(name); err != nil {
			return fmt.Errorf("rule.%s.channels[%d]: %w", rule.Name, i, err)
		}
	}
	if rule.CooldownSec < 0 {
		return fmt.Errorf("rule.%s.cooldown_sec must be >=0", rule.Name)
	}
	if rule.EscalateAfterSec < 0 {
		return fmt.Errorf("rule.%s.escalate_after_sec must be >=0", rule.Name)
	}
	return nil
}

// validateLogSink validates one logging sink.
// Params: sink name for error text, sink settings, and path requirement flag.
// Returns: error when an enabled sink is misconfigured.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
