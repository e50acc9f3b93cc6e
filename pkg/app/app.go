package app

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/BillArmsty/rusty-rocket/pkg/metrics"
)

// App is a short lived application that runs a unit of work to completion.
//
// The lifecycle of the App is tied to the process. The app is initialized
// before Run is called, and gets stopped once Run has returned or the process
// has been interrupted.
type App interface {
	// Init initializes the application in a blocking fashion.
	//
	// todo: Pass a metrics abstraction instead of the New Relic app once one
	//       exists outside of pkg/metrics.
	Init(config Config, metricsProvider *newrelic.Application) error

	// Run executes the application. The provided context is cancelled when
	// the process receives an interrupt.
	Run(ctx context.Context) error

	// Stop stops the application, allowing for it to clean up any resources.
	//
	// Stop should be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run loads the process configuration and runs the app until it completes or
// the process is interrupted.
func Run(app App, options ...Option) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "app")

	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file because one hasn't been explicitly set. That is,
	// if we explicitly set a config file, and it does not exist, viper will not
	// return a ConfigFileNotFoundError, so we do it ourselves.
	if _, err := os.Stat(*configPath); err == nil {
		viper.SetConfigFile(*configPath)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		logger.Error("must specify an application name")
		return errors.New("app name is required")
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			return errors.Wrap(err, "error connecting to new relic")
		}

		metricsProvider = nr
		defer nr.Shutdown(config.ShutdownGracePeriod)
	}

	return run(app, config, metricsProvider, options...)
}

func run(app App, config BaseConfig, metricsProvider *newrelic.Application, options ...Option) error {
	opts := defaultOpts()
	for _, o := range options {
		o(&opts)
	}

	configureLogger(config, metricsProvider, opts.logOutput)

	logger := logrus.StandardLogger().WithFields(logrus.Fields{
		"type": "app",
		"app":  config.AppName,
	})

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		logger.WithError(err).Error("failed to initialize application")
		return errors.Wrap(err, "failed to initialize application")
	}

	ctx, cancel := context.WithCancel(metrics.NewContext(context.Background(), metricsProvider))
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- app.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-resultCh:
		logger.Info("app completed")
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
		cancel()

		select {
		case runErr = <-resultCh:
		case <-time.After(config.ShutdownGracePeriod):
			runErr = errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
		}
	}

	app.Stop()
	return runErr
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application, output io.Writer) {
	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if strings.ToLower(config.LogFormat) == LogFormatJSON {
		formatter = &logrus.JSONFormatter{}
	}

	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewLogFormatter(metricsProvider, formatter))
	} else {
		logrus.SetFormatter(formatter)
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(output)
}
