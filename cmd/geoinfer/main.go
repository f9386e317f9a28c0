package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wgdzlh/geoinfer"
	"github.com/wgdzlh/geoinfer/log"
	"github.com/wgdzlh/geoinfer/tfmodel"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "geoinfer:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a JSON config file")
		modelPath  = flag.String("model", "", "path to a .tflite segmentation model")
		imagePath  = flag.String("image", "", "path or http(s) url of the GeoTIFF to classify")
		workDir    = flag.String("workdir", "", "output directory (overrides config)")
		patch      = flag.Int("patch", 0, "patch size in pixels (overrides config)")
		stride     = flag.Int("stride", 0, "stride in pixels (overrides config)")
		batch      = flag.Int("batch", 0, "tiles per model batch (overrides config)")
		workers    = flag.Int("workers", 0, "parallel tile readers (overrides config)")
		threads    = flag.Int("threads", 0, "model interpreter threads (overrides config)")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error (overrides config)")
		jsonLog    = flag.Bool("log-json", false, "emit JSON logs")
		vectorize  = flag.Bool("vectorize", false, "also polygonize the mask into a shapefile")
	)
	flag.Parse()
	if *modelPath == "" || *imagePath == "" {
		flag.Usage()
		return fmt.Errorf("-model and -image are required")
	}

	cfg := geoinfer.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = geoinfer.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	overrideString(&cfg.WorkDir, *workDir)
	overrideString(&cfg.LogLevel, *logLevel)
	overrideInt(&cfg.PatchSize, *patch)
	overrideInt(&cfg.Stride, *stride)
	overrideInt(&cfg.BatchSize, *batch)
	overrideInt(&cfg.Workers, *workers)
	overrideInt(&cfg.Threads, *threads)
	cfg.Vectorize = cfg.Vectorize || *vectorize

	logger, err := log.New(cfg.LogLevel, *jsonLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	model, err := tfmodel.New(*modelPath, cfg.Threads, logger)
	if err != nil {
		return err
	}
	defer model.Close()
	if model.PatchSize() != cfg.PatchSize {
		logger.Warn("model input size differs from patch size, using the model's",
			zap.Int("model", model.PatchSize()), zap.Int("patch", cfg.PatchSize))
		cfg.PatchSize = model.PatchSize()
	}

	crs := geoinfer.NewCrsToolbox(logger)
	defer crs.Close()
	accessor := geoinfer.NewGdalAccessor(crs, logger)
	opts := []geoinfer.Option{geoinfer.WithCrsToolbox(crs)}
	if cfg.Vectorize {
		opts = append(opts, geoinfer.WithVectorizer(geoinfer.NewShpVectorizer(cfg.ClassNames, logger)))
	}
	inference, err := geoinfer.NewInference(accessor, model, cfg, logger, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := inference.Run(ctx, *imagePath)
	if err != nil {
		return err
	}
	fmt.Println(res.MaskPath)
	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
