// Command labelctl drives a labelcore dataset from the shell: seeding
// settings, recording products, orders, and device scans, and publishing
// shipping manifests. Storage and blob backends are selected through
// LABELCORE_* environment variables.
package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labelcore/internal/blob"
	"labelcore/internal/core"
	"labelcore/internal/export"
	"labelcore/pkg/domain"
)

// Config holds runtime configuration for labelctl.
type Config struct {
	LogFormat   string `envconfig:"LABELCORE_LOG_FORMAT" default:"text"`
	LogLevel    string `envconfig:"LABELCORE_LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"LABELCORE_METRICS_ADDR" default:""`
	TraceFile   string `envconfig:"LABELCORE_TRACE_FILE" default:""`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "labelctl:", err)
		os.Exit(1)
	}
}

func usage() string {
	return `usage: labelctl <command> [flags]

commands:
  init                                  seed default settings
  add-product   -id -name [...]         record a product
  add-order     -id -product -quantity  record an order
  scan          -device -order [-udi] [-case]
                                        record a device scan
  next-case     -order                  print the next case id for an order
  export        -order -manifest devices|cases|pallets
                                        publish a manifest to the blob store
  serve-metrics                         expose prometheus + expvar metrics`
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage())
	}
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	opts := []core.Option{core.WithLogger(logger)}
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}
	opts = append(opts, core.WithMetricsRecorder(recorder))

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	svc := core.NewService(store, opts...)

	ctx := context.Background()
	switch args[0] {
	case "init":
		return runInit(ctx, svc)
	case "add-product":
		return runAddProduct(ctx, svc, args[1:])
	case "add-order":
		return runAddOrder(ctx, svc, args[1:])
	case "scan":
		return runScan(ctx, svc, args[1:])
	case "next-case":
		return runNextCase(ctx, svc, args[1:])
	case "export":
		return runExport(ctx, store, args[1:])
	case "serve-metrics":
		return runServeMetrics(cfg, logger, registry, store)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage())
	}
}

func runInit(ctx context.Context, svc *core.Service) error {
	if _, err := svc.EnsureDefaults(ctx); err != nil {
		return err
	}
	fmt.Println("settings seeded")
	return nil
}

func runAddProduct(ctx context.Context, svc *core.Service, args []string) error {
	fs := flag.NewFlagSet("add-product", flag.ContinueOnError)
	id := fs.String("id", "", "product id")
	name := fs.String("name", "", "product name")
	color := fs.String("color", "", "product color")
	header := fs.String("label-header", "", "device label header")
	deviceIDLen := fs.Int("device-id-length", 0, "device id length (default from settings)")
	udiLen := fs.Int("udi-length", 0, "udi length (default from settings)")
	hasUDI := fs.Bool("has-udi", false, "product devices carry a udi")
	caseSize := fs.Int("case-size", 0, "case size (default from settings)")
	palletSize := fs.Int("pallet-size", 0, "pallet size (default from settings)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	creation := core.ProductCreation{
		ProductID:         *id,
		Name:              *name,
		Color:             *color,
		DeviceLabelHeader: *header,
	}
	if *deviceIDLen > 0 {
		creation.DeviceIDLength = deviceIDLen
	}
	if *udiLen > 0 {
		creation.UDILength = udiLen
	}
	if *caseSize > 0 {
		creation.CaseSize = caseSize
	}
	if *palletSize > 0 {
		creation.PalletSize = palletSize
	}
	if flagSet(fs, "has-udi") {
		creation.HasUDI = hasUDI
	}
	product, _, err := svc.CreateProduct(ctx, creation)
	if err != nil {
		return err
	}
	fmt.Printf("product %s recorded\n", product.ProductID)
	return nil
}

func runAddOrder(ctx context.Context, svc *core.Service, args []string) error {
	fs := flag.NewFlagSet("add-order", flag.ContinueOnError)
	id := fs.String("id", "", "order id")
	productID := fs.String("product", "", "product id")
	quantity := fs.Int("quantity", 0, "ordered quantity")
	due := fs.String("due", "", "due date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	creation := core.OrderCreation{
		OrderID:   *id,
		ProductID: *productID,
		Quantity:  *quantity,
		OrderedOn: time.Now().UTC(),
	}
	if *due != "" {
		t, err := time.Parse("2006-01-02", *due)
		if err != nil {
			return fmt.Errorf("parse due date: %w", err)
		}
		creation.DueOn = &t
	}
	order, _, err := svc.CreateOrder(ctx, creation)
	if err != nil {
		return err
	}
	fmt.Printf("order %s recorded\n", order.OrderID)
	return nil
}

func runScan(ctx context.Context, svc *core.Service, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	deviceID := fs.String("device", "", "device id")
	udi := fs.String("udi", "", "udi")
	orderID := fs.String("order", "", "order id")
	caseID := fs.String("case", "", "case id (default: next case for the order)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := *caseID
	if target == "" {
		next, err := svc.NextCaseID(ctx, *orderID)
		if err != nil {
			return err
		}
		target = next
	}
	device, _, err := svc.CreateDevice(ctx, core.DeviceCreation{
		DeviceID: *deviceID,
		UDI:      *udi,
		OrderID:  *orderID,
		CaseID:   target,
	})
	if err != nil {
		return err
	}
	fmt.Printf("device %s recorded in case %s\n", device.DeviceID, device.CaseID)
	return nil
}

func runNextCase(ctx context.Context, svc *core.Service, args []string) error {
	fs := flag.NewFlagSet("next-case", flag.ContinueOnError)
	orderID := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := svc.NextCaseID(ctx, *orderID)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runExport(ctx context.Context, store domain.PersistentStore, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	orderID := fs.String("order", "", "order id")
	manifest := fs.String("manifest", "devices", "manifest kind: devices|cases|pallets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	objects, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	exporter := export.NewExporter(store, objects)
	var info blob.Info
	switch export.Manifest(*manifest) {
	case export.ManifestDevices:
		info, err = exporter.ExportDevices(ctx, *orderID)
	case export.ManifestCases:
		info, err = exporter.ExportCases(ctx, *orderID)
	case export.ManifestPallets:
		info, err = exporter.ExportPallets(ctx, *orderID)
	default:
		return fmt.Errorf("unknown manifest kind %q", *manifest)
	}
	if err != nil {
		return err
	}
	fmt.Printf("exported %s (%d bytes)\n", info.Key, info.Size)
	return nil
}

func runServeMetrics(cfg *Config, logger *slog.Logger, registry *prometheus.Registry, store domain.PersistentStore) error {
	addr := cfg.MetricsAddr
	if addr == "" {
		addr = ":9180"
	}
	counts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "labelcore",
		Name:      "active_records",
		Help:      "Active record counts by entity.",
	}, []string{"entity"})
	if err := registry.Register(counts); err != nil {
		return err
	}
	refresh := func() {
		products, orders, devices := 0, 0, 0
		for _, p := range store.ListProducts() {
			if !p.Deleted() {
				products++
			}
		}
		for _, o := range store.ListOrders() {
			if !o.Deleted() {
				orders++
			}
		}
		for _, d := range store.ListDevices() {
			if !d.Deleted() {
				devices++
			}
		}
		counts.WithLabelValues(string(domain.EntityProduct)).Set(float64(products))
		counts.WithLabelValues(string(domain.EntityOrder)).Set(float64(orders))
		counts.WithLabelValues(string(domain.EntityDevice)).Set(float64(devices))
	}
	refresh()
	cancel := store.Watch(func([]domain.Change) { refresh() })
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	logger.Info("metrics listening", "addr", addr)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return server.ListenAndServe()
}

func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
