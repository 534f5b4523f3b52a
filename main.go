package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"ipwatch/client/notifier"
	"ipwatch/client/provider"
	"ipwatch/client/provider/aliyun"
	"ipwatch/client/provider/tencent"
	"ipwatch/client/publicip"
	"ipwatch/client/ros"
	"ipwatch/config"
	"ipwatch/logconfig"
	"ipwatch/watcher"
)

func main() {
	logconfig.Bootstrap()

	conf, closer, err := setup(os.Getenv("CONFIG_FILE"))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		os.Exit(1)
	}
	defer closer.Close()

	httpClient := &http.Client{Timeout: conf.Timeout()}

	notifiers, err := buildNotifiers(conf, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure notifiers")
	}

	webhook := notifier.NewWebhook(httpClient, conf.WebhookURL)
	var reporters []notifier.Reporter
	if conf.NotifyEveryPoll {
		reporters = append(reporters, webhook)
	}

	w := watcher.New(buildResolver(conf, httpClient), watcher.Options{
		Interval:       conf.PollInterval(),
		ResolveTimeout: conf.Timeout(),
		Notifiers:      append([]notifier.Notifier{webhook}, notifiers...),
		Reporters:      reporters,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	w.Run(ctx)
}

// setup loads the configuration and starts file logging before reporting a
// configuration error, so the error lands in the log file too.
func setup(path string) (config.ConfType, io.Closer, error) {
	conf, loadErr := config.Load(path)

	closer, err := logconfig.Configure(logconfig.LogOptions{
		LogLevel: logconfig.ParseLevel(conf.LogLevel),
		Dir:      conf.LogDir,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to configure logging")
		return conf, nil, errors.Wrap(err, "configure logging")
	}

	if loadErr != nil {
		log.Error().Err(loadErr).Msg("Invalid configuration")
		return conf, closer, loadErr
	}
	return conf, closer, nil
}

func buildResolver(conf config.ConfType, client *http.Client) watcher.Resolver {
	if conf.Resolver == config.ResolverRouterOS {
		return ros.NewClient(*conf.RouterOSClient)
	}
	return publicip.New(client, conf.Sources, nil)
}

// buildNotifiers returns the DDNS URL notifiers followed by the provider API
// notifiers, the latter sorted by name.
func buildNotifiers(conf config.ConfType, client *http.Client) ([]notifier.Notifier, error) {
	var notifiers []notifier.Notifier
	for _, template := range conf.DDNSURLs {
		notifiers = append(notifiers, notifier.NewDDNS(client, template))
	}

	names := make([]string, 0, len(conf.DDNSProvider))
	for name := range conf.DDNSProvider {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, err := newProvider(conf.DDNSProvider[name])
		if err != nil {
			return nil, errors.Wrapf(err, "ddns provider %s", name)
		}
		notifiers = append(notifiers, notifier.NewProvider(name, p))
	}
	return notifiers, nil
}

func newProvider(block map[string]any) (provider.DDNSProvider, error) {
	kind, _ := block["type"].(string)
	switch kind {
	case "aliyun":
		return aliyun.New(block)
	case "tencent":
		return tencent.New(block)
	}
	return nil, errors.Errorf("unknown provider type %q", kind)
}
