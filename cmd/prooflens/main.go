/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command prooflens runs the ProofLens text analysis service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/acronis/go-prooflens/api"
	"github.com/acronis/go-prooflens/config"
	"github.com/acronis/go-prooflens/generator"
	"github.com/acronis/go-prooflens/httpclient"
	"github.com/acronis/go-prooflens/httpserver"
	"github.com/acronis/go-prooflens/internal/version"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/restapi"
	"github.com/acronis/go-prooflens/resultcache"
	"github.com/acronis/go-prooflens/scheduler"
	"github.com/acronis/go-prooflens/service"
)

const envVarsPrefix = "prooflens"

const metricsNamespace = "prooflens"

// appConfig is the whole configuration of the service.
type appConfig struct {
	Server    *httpserver.Config
	Scheduler *scheduler.Config
	Cache     *resultcache.Config
	Generator *generator.Config
	Log       *log.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Server:    httpserver.NewConfig(),
		Scheduler: scheduler.NewConfig(),
		Cache:     resultcache.NewConfig(),
		Generator: generator.NewConfig(),
		Log:       log.NewConfig(),
	}
}

func main() {
	if err := runApp(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runApp(args []string) error {
	flags := pflag.NewFlagSet("prooflens", pflag.ContinueOnError)
	cfgPath := flags.StringP("config", "c", "", "path to the YAML configuration file")
	printConfig := flags.Bool("print-config", false, "print the effective configuration and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := newAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	if err := loadConfig(loader, *cfgPath, cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *printConfig {
		return loader.DumpYAML(os.Stdout)
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	svc, err := newService(cfg, logger)
	if err != nil {
		logger.Error("failed to create service", log.Error(err))
		return err
	}
	logger.Info("starting ProofLens", log.String("version", version.Get()),
		log.String("address", cfg.Server.Address), log.String("provider", cfg.Generator.Provider))
	return svc.StartContext(context.Background())
}

func loadConfig(loader *config.Loader, path string, cfg *appConfig) error {
	cfgs := []config.Config{cfg.Scheduler, cfg.Cache, cfg.Generator, cfg.Log}
	if path == "" {
		return loader.Load(cfg.Server, cfgs...)
	}
	return loader.LoadFromFile(path, config.DataTypeYAML, cfg.Server, cfgs...)
}

func newService(cfg *appConfig, logger log.FieldLogger) (*service.Service, error) {
	httpClientMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	schedulerMetrics := scheduler.NewPrometheusMetricsWithNamespace(metricsNamespace)
	cacheMetrics := resultcache.NewPrometheusMetrics(resultcache.PrometheusMetricsOpts{Namespace: metricsNamespace})

	gen, err := generator.New(cfg.Generator, logger, generator.Opts{
		UserAgent:         version.UserAgent(),
		RequestIDProvider: scheduler.GetTaskIDFromContext,
		MetricsCollector:  httpClientMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}

	cache, err := resultcache.New[scheduler.Fingerprint, string](cfg.Cache.MaxEntries, cacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	sched, err := scheduler.NewWithOpts(cfg.Scheduler, gen, logger, scheduler.Opts{Cache: cache, Metrics: schedulerMetrics})
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	srvOpts := api.ServerOpts(api.NewAnalyzeHandler(sched, logger), newHealthCheck(sched))
	srvOpts.HTTPRequestMetrics = httpserver.HTTPRequestMetricsOpts{
		Namespace:   metricsNamespace,
		ConstLabels: version.AddPrometheusVersionLabel(nil),
	}
	httpServer, err := httpserver.New(cfg.Server, logger, srvOpts)
	if err != nil {
		return nil, fmt.Errorf("create HTTP server: %w", err)
	}

	dispatcherUnit := service.NewWorkerUnitWithOpts(sched.Dispatcher(), service.WorkerUnitOpts{
		MetricsRegisterer: metricsGroup{
			restapiMetrics{namespace: metricsNamespace}, httpClientMetrics, schedulerMetrics, cacheMetrics,
		},
	})
	// The HTTP server is stopped first so in-flight requests still get their analyses.
	units := []service.Unit{httpServer, dispatcherUnit}
	if cfg.Scheduler.StatsInterval > 0 {
		units = append(units, service.NewWorkerUnit(
			service.NewPeriodicWorker(scheduler.NewStatsReporter(sched, logger), cfg.Scheduler.StatsInterval, logger)))
	}
	return service.New(logger, service.NewOrderedCompositeUnit(units...)), nil
}

func newHealthCheck(sched *scheduler.Scheduler) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status := httpserver.HealthCheckStatusOK
		if !sched.Healthy() {
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{"scheduler": status}, nil
	}
}

type prometheusCollector interface {
	MustRegister()
	Unregister()
}

// metricsGroup registers several collectors as a single service.MetricsRegisterer.
type metricsGroup []prometheusCollector

func (g metricsGroup) MustRegisterMetrics() {
	for _, c := range g {
		c.MustRegister()
	}
}

func (g metricsGroup) UnregisterMetrics() {
	for _, c := range g {
		c.Unregister()
	}
}

type restapiMetrics struct {
	namespace string
}

func (m restapiMetrics) MustRegister() { restapi.MustInitAndRegisterMetrics(m.namespace) }

func (m restapiMetrics) Unregister() { restapi.UnregisterMetrics() }
