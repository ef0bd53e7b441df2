// Command ec2-route53-sync keeps DNS address records in step with the
// lifecycle of tagged EC2 instances.
//
// Inside AWS Lambda it handles EC2 state-change events. Elsewhere it either
// reconciles the instance ARNs given with -resources once, or sweeps every
// tagged instance periodically.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bkero/ec2-route53-sync/pkg/controller"
	"github.com/bkero/ec2-route53-sync/pkg/provider"
	"github.com/bkero/ec2-route53-sync/pkg/provider/rfc2136"
	r53provider "github.com/bkero/ec2-route53-sync/pkg/provider/route53"
	"github.com/bkero/ec2-route53-sync/pkg/source"
)

// options is the process configuration shared by every run mode.
type options struct {
	region          string
	providerName    string
	zonesFile       string
	domainTag       string
	zonesTag        string
	accountID       string
	ttl             int64
	concurrency     int
	dryRun          bool
	interval        time.Duration
	once            bool
	resources       string
	healthPort      int
	shutdownTimeout time.Duration
	logLevel        string
}

func main() {
	opts := parseFlags(flag.CommandLine, os.Args[1:])
	log := newLogger(opts.logLevel)

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		log.Info("starting lambda handler", "provider", opts.providerName, "dry-run", opts.dryRun)
		lambda.Start(newHandler(log, newControllerFactory(opts, log)))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := run(ctx, opts, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ec2-route53-sync exited with error", "err", err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) options {
	var o options

	// ---- AWS flags ----
	fs.StringVar(&o.region, "region",
		envOr("EC2_ROUTE53_SYNC_REGION", os.Getenv("AWS_REGION")),
		"AWS region of the instances (Lambda events carry their own)")
	fs.StringVar(&o.accountID, "account-id",
		envOr("EC2_ROUTE53_SYNC_ACCOUNT_ID", ""),
		"Only accept instance ARNs owned by this account (empty accepts any)")
	fs.StringVar(&o.domainTag, "domain-tag",
		envOr("EC2_ROUTE53_SYNC_DOMAIN_TAG", source.DefaultDomainTag),
		"Instance tag holding the record name")
	fs.StringVar(&o.zonesTag, "zones-tag",
		envOr("EC2_ROUTE53_SYNC_ZONES_TAG", source.DefaultZonesTag),
		"Instance tag holding comma-separated hosted zone IDs")

	// ---- Provider flags ----
	fs.StringVar(&o.providerName, "provider",
		envOr("EC2_ROUTE53_SYNC_PROVIDER", "route53"),
		"DNS provider: route53 or rfc2136")
	fs.StringVar(&o.zonesFile, "rfc2136-zones-file",
		envOr("EC2_ROUTE53_SYNC_RFC2136_ZONES_FILE", ""),
		"YAML file listing RFC2136 zones (required with -provider=rfc2136)")

	// ---- Controller flags ----
	fs.Int64Var(&o.ttl, "ttl",
		envOrInt64("EC2_ROUTE53_SYNC_TTL", 0),
		"TTL of published records in seconds (0 = default of 5)")
	fs.IntVar(&o.concurrency, "concurrency",
		envOrInt("EC2_ROUTE53_SYNC_CONCURRENCY", controller.DefaultConcurrency),
		"Maximum parallel DNS calls per reconciliation")
	fs.BoolVar(&o.dryRun, "dry-run",
		envOrBool("DRY_RUN", false) || envOrBool("EC2_ROUTE53_SYNC_DRY_RUN", false),
		"Report planned DNS changes without applying them (a truthy DRY_RUN always enables it)")
	fs.StringVar(&o.resources, "resources",
		envOr("EC2_ROUTE53_SYNC_RESOURCES", ""),
		"Comma-separated instance ARNs to reconcile once, then exit")
	fs.DurationVar(&o.interval, "interval",
		envOrDuration("EC2_ROUTE53_SYNC_INTERVAL", 60*time.Second),
		"Sweep interval")
	fs.BoolVar(&o.once, "once",
		envOrBool("EC2_ROUTE53_SYNC_ONCE", false),
		"Sweep all tagged instances exactly once and exit")

	// ---- Health check flags ----
	fs.IntVar(&o.healthPort, "health-port",
		envOrInt("EC2_ROUTE53_SYNC_HEALTH_PORT", 8080),
		"Port for the HTTP health and metrics server in sweep mode (0 to disable)")

	// ---- Shutdown flags ----
	fs.DurationVar(&o.shutdownTimeout, "shutdown-timeout",
		envOrDuration("EC2_ROUTE53_SYNC_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Maximum time to wait for an in-progress sweep after SIGTERM")

	// ---- Logging flags ----
	fs.StringVar(&o.logLevel, "log-level",
		envOr("EC2_ROUTE53_SYNC_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error")

	_ = fs.Parse(args)
	return o
}

// run executes the one-shot or sweep mode outside Lambda.
func run(ctx context.Context, opts options, log *slog.Logger) error {
	if opts.region == "" {
		return errors.New("--region is required (or set EC2_ROUTE53_SYNC_REGION / AWS_REGION)")
	}
	ctrl, err := newControllerFactory(opts, log)(ctx, opts.region)
	if err != nil {
		return err
	}

	if resources := splitList(opts.resources); len(resources) > 0 {
		log.Info("reconciling resources", "region", opts.region, "resources", len(resources), "dry-run", opts.dryRun)
		res, err := ctrl.Reconcile(ctx, resources)
		if err != nil {
			return err
		}
		if res.DryRun && res.Report != "" {
			fmt.Fprintln(os.Stdout, res.Report)
		}
		return res.Err()
	}

	startHealthServer(ctx, opts.healthPort, ctrl, log)

	log.Info("starting ec2-route53-sync",
		"region", opts.region,
		"provider", opts.providerName,
		"interval", opts.interval.String(),
		"dry-run", opts.dryRun,
		"once", opts.once,
	)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	// Let an in-progress sweep finish its mutations, bounded by the shutdown
	// timeout.
	select {
	case err := <-done:
		log.Info("shutdown complete")
		return err
	case <-time.After(opts.shutdownTimeout):
		log.Warn("shutdown timeout exceeded, forcing exit", "timeout", opts.shutdownTimeout.String())
		return ctx.Err()
	}
}

// controllerFactory builds a controller whose AWS clients are scoped to region.
type controllerFactory func(ctx context.Context, region string) (*controller.Controller, error)

func newControllerFactory(opts options, log *slog.Logger) controllerFactory {
	return func(ctx context.Context, region string) (*controller.Controller, error) {
		if region == "" {
			region = opts.region
		}
		sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
		if err != nil {
			return nil, fmt.Errorf("create AWS session for %s: %w", region, err)
		}
		src := source.NewEC2Source(sess, source.EC2Config{
			DomainTag: opts.domainTag,
			ZonesTag:  opts.zonesTag,
		}, log)
		prov, err := newProvider(ctx, opts, sess, log)
		if err != nil {
			return nil, err
		}
		return controller.New(src, prov, log, controller.Config{
			Concurrency: opts.concurrency,
			DryRun:      opts.dryRun,
			TTL:         opts.ttl,
			AccountID:   opts.accountID,
			Interval:    opts.interval,
			Once:        opts.once,
		}), nil
	}
}

func newProvider(ctx context.Context, opts options, sess *session.Session, log *slog.Logger) (provider.Provider, error) {
	switch opts.providerName {
	case "route53":
		return r53provider.New(sess, log), nil
	case "rfc2136":
		if opts.zonesFile == "" {
			return nil, errors.New("--rfc2136-zones-file is required with --provider=rfc2136")
		}
		zones, err := rfc2136.LoadZoneConfigsFromFile(opts.zonesFile)
		if err != nil {
			return nil, err
		}
		m := rfc2136.NewMulti(zones, log)
		if err := m.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("rfc2136 preflight: %w", err)
		}
		log.Info("rfc2136 zones ready", "zones", m.Zones())
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want route53 or rfc2136)", opts.providerName)
	}
}

// Output is the Lambda handler result.
type Output struct {
	Success bool   `json:"success"`
	DryRun  bool   `json:"dry_run"`
	Changes int    `json:"changes"`
	Applied int    `json:"applied"`
	Report  string `json:"report,omitempty"`
}

// newHandler returns the Lambda handler for EC2 state-change events. A
// non-nil error is returned alongside the Output when any pair failed, so the
// invoking scheduler can retry the whole (idempotent) reconciliation.
func newHandler(log *slog.Logger, newController controllerFactory) func(context.Context, events.CloudWatchEvent) (Output, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (Output, error) {
		log.Info("handling event",
			"id", ev.ID,
			"detail-type", ev.DetailType,
			"region", ev.Region,
			"resources", len(ev.Resources),
		)
		ctrl, err := newController(ctx, ev.Region)
		if err != nil {
			return Output{}, err
		}
		res, err := ctrl.Reconcile(ctx, ev.Resources)
		if err != nil {
			return Output{}, err
		}
		out := Output{
			Success: res.Success(),
			DryRun:  res.DryRun,
			Changes: len(res.Changes),
			Applied: len(res.Applied),
			Report:  res.Report,
		}
		return out, res.Err()
	}
}

// startHealthServer starts an HTTP server exposing /healthz (liveness),
// /readyz (readiness) and /metrics on the given port. A port of 0 disables
// the server. The server is shut down gracefully when ctx is cancelled.
func startHealthServer(ctx context.Context, port int, ctrl *controller.Controller, log *slog.Logger) {
	if port == 0 {
		return
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           healthMux(ctrl),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Warn("health server shutdown error", "err", err)
		}
	}()
	go func() {
		log.Info("health server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server error", "err", err)
		}
	}()
}

func healthMux(ctrl *controller.Controller) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ctrl.IsReady() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "not ready")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// newLogger returns a JSON logger writing to stderr at the given level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envOr returns the value of the environment variable named key, or fallback
// if the variable is unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOrInt returns the environment variable named key parsed as int, or fallback.
func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envOrInt64 returns the environment variable named key parsed as int64, or fallback.
func envOrInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// envOrBool returns the environment variable named key parsed as bool, or
// fallback. Any value strconv.ParseBool rejects yields fallback.
func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envOrDuration returns the environment variable named key parsed as
// time.Duration, or fallback.
func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
