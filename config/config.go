package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath           = "./config.yaml"
	DefaultInterval       = 3600
	DefaultRequestTimeout = 10
	DefaultLogDir         = "logs"
	DefaultLogLevel       = "info"

	ResolverHTTP     = "http"
	ResolverRouterOS = "ros"
)

// DefaultSources echo the caller's public address as plain text.
var DefaultSources = []string{
	"https://api.ipify.org",
	"https://ipinfo.io/ip",
	"https://checkip.amazonaws.com",
}

// ErrWebhookRequired is returned when no webhook destination is configured.
var ErrWebhookRequired = errors.New("webhook url is required")

type RouterOSClientConfig struct {
	Host      string `yaml:"host"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Interface string `yaml:"interface"`
	Family    string `yaml:"family"`
}

type ConfType struct {
	Interval        int                       `yaml:"interval"`
	RequestTimeout  int                       `yaml:"request_timeout"`
	WebhookURL      string                    `yaml:"webhook_url"`
	NotifyEveryPoll bool                      `yaml:"notify_every_poll"`
	Resolver        string                    `yaml:"resolver"`
	Sources         []string                  `yaml:"sources"`
	DDNSURLs        []string                  `yaml:"ddns_urls"`
	RouterOSClient  *RouterOSClientConfig     `yaml:"ros_client"`
	DDNSProvider    map[string]map[string]any `yaml:"ddns_provider"`
	LogDir          string                    `yaml:"log_dir"`
	LogLevel        string                    `yaml:"log_level"`
}

// PollInterval is the time between two ticks of the change loop.
func (c ConfType) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Timeout bounds every outgoing request.
func (c ConfType) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Load reads .env, the optional YAML file at path and the environment, in
// that order of increasing precedence. An empty path means DefaultPath,
// which may be absent.
//
// The returned conf has the environment and defaults applied even when an
// error is returned, so callers can still set up logging from it.
func Load(path string) (ConfType, error) {
	_ = godotenv.Load()

	var conf ConfType
	fileErr := parseFile(path, &conf)
	if fileErr != nil {
		conf = ConfType{}
	}
	applyEnv(&conf)
	applyDefaults(&conf)
	if fileErr != nil {
		return conf, fileErr
	}
	return conf, validate(conf)
}

func parseFile(path string, conf *ConfType) error {
	optional := path == ""
	if optional {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

func applyEnv(conf *ConfType) {
	if v, ok := lookup("INTERVAL", "doration"); ok {
		// Unparsable values fall back to the default below.
		conf.Interval, _ = strconv.Atoi(strings.TrimSpace(v))
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		conf.RequestTimeout, _ = strconv.Atoi(strings.TrimSpace(v))
	}
	if v, ok := lookup("WEBHOOK_URL", "DISCORD_WEBHOOK_URL", "discord_webhook_url"); ok {
		conf.WebhookURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("NOTIFY_EVERY_POLL"); ok {
		conf.NotifyEveryPoll, _ = strconv.ParseBool(strings.TrimSpace(v))
	}
	if v, ok := lookup("DDNS_URLS"); ok {
		conf.DDNSURLs = splitList(v)
	}
	if v, ok := lookup("LOG_DIR"); ok {
		conf.LogDir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		conf.LogLevel = v
	}
}

func applyDefaults(conf *ConfType) {
	if conf.Interval <= 0 {
		conf.Interval = DefaultInterval
	}
	if conf.RequestTimeout <= 0 {
		conf.RequestTimeout = DefaultRequestTimeout
	}
	if conf.Resolver == "" {
		conf.Resolver = ResolverHTTP
	}
	if len(conf.Sources) == 0 {
		conf.Sources = append([]string(nil), DefaultSources...)
	}
	if conf.LogDir == "" {
		conf.LogDir = DefaultLogDir
	}
	if conf.LogLevel == "" {
		conf.LogLevel = DefaultLogLevel
	}
}

func validate(conf ConfType) error {
	if conf.WebhookURL == "" {
		return ErrWebhookRequired
	}
	switch conf.Resolver {
	case ResolverHTTP:
	case ResolverRouterOS:
		if conf.RouterOSClient == nil || conf.RouterOSClient.Host == "" {
			return errors.New("resolver ros needs a ros_client host")
		}
	default:
		return errors.Errorf("unknown resolver %q", conf.Resolver)
	}
	return nil
}

func lookup(keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
