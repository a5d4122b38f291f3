package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Tutortoise/pneumonia-service/annotations"
	"github.com/Tutortoise/pneumonia-service/detections"
	"github.com/Tutortoise/pneumonia-service/history"
	"github.com/Tutortoise/pneumonia-service/logging"
	"github.com/Tutortoise/pneumonia-service/models"
	"github.com/Tutortoise/pneumonia-service/regions"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Options{
		Debug: cfg.Debug,
		Dir:   cfg.LogDir,
		Env:   cfg.AppEnv,
	})
	logger.WithFields(logrus.Fields{
		"addr":         cfg.Addr,
		"cpu_features": detections.Features(),
		"pool_size":    cfg.PoolSize,
	}).Info("Starting pneumonia service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize ONNX Runtime
	var runtimeErr error
	libPath, err := resolveLibraryPath(cfg.OnnxLibPath)
	if err == nil {
		err = detections.InitializeRuntime(libPath)
	}
	if err != nil {
		runtimeErr = fmt.Errorf("%w: %w", detections.ErrLoad, err)
		logger.WithField("error", err.Error()).Error("ONNX runtime unavailable, models will not load")
	} else {
		logger.WithField("library", libPath).Info("ONNX runtime initialized")
		defer detections.DestroyRuntime()
	}

	loadErrors := map[models.Variant]error{}
	var pools []*ModelSessionPool

	segMeta, segRunner, segPool := loadVariant(cfg, logger, runtimeErr, models.VariantSegmentation,
		cfg.SegmenterModel, cfg.SegmenterMetadata, detections.DefaultSegmenterMetadata(), loadErrors)
	clsMeta, clsRunner, clsPool := loadVariant(cfg, logger, runtimeErr, models.VariantClassifier,
		cfg.ClassifierModel, cfg.ClassifierMetadata, detections.DefaultClassifierMetadata(), loadErrors)
	for _, p := range []*ModelSessionPool{segPool, clsPool} {
		if p != nil {
			pools = append(pools, p)
			defer p.Destroy()
		}
	}

	connectivity := regions.Connectivity8
	if cfg.Connectivity == 4 {
		connectivity = regions.Connectivity4
	}
	segmenter := detections.NewSegmenter(segRunner, segMeta,
		detections.WithThreshold(float32(cfg.MaskThreshold)),
		detections.WithConnectivity(connectivity),
	)
	classifier := detections.NewClassifier(clsRunner, clsMeta)

	uploads, annotationStore, err := buildArtifactStores(cfg)
	if err != nil {
		logger.Fatalf("Failed to set up artifact storage: %v", err)
	}

	historyStore, err := buildHistory(ctx, cfg)
	if err != nil {
		logger.WithField("error", err.Error()).Error("History store unavailable, predictions will not be recorded")
		historyStore = history.Noop{}
	}
	defer historyStore.Close()

	state, err := newAppState(cfg, logger, appDeps{
		segmenter:   segmenter,
		classifier:  classifier,
		uploads:     uploads,
		annotations: annotationStore,
		history:     historyStore,
		pools:       pools,
		loadErrors:  loadErrors,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}

	srv := &http.Server{
		Handler:           state.routes(),
		Addr:              cfg.Addr,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server stopped: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Graceful shutdown failed: %v", err)
		}
	}
}

// loadVariant creates the session pool for one model. When loading fails the
// returned runner reports the load error on every call so the endpoint
// answers 503 while the rest of the service keeps running.
func loadVariant(cfg *Config, logger *logrus.Logger, runtimeErr error, variant models.Variant,
	modelPath, metaPath string, defaults detections.Metadata, loadErrors map[models.Variant]error,
) (detections.Metadata, detections.Runner, *ModelSessionPool) {
	log := logger.WithFields(logrus.Fields{"variant": variant, "model": modelPath})

	fail := func(err error) (detections.Metadata, detections.Runner, *ModelSessionPool) {
		loadErrors[variant] = err
		log.WithField("error", err.Error()).Error("Model unavailable")
		return defaults, detections.Unavailable(err), nil
	}

	if runtimeErr != nil {
		return fail(runtimeErr)
	}

	meta, err := detections.LoadMetadata(metaPath, defaults)
	if err != nil {
		return fail(err)
	}

	factory := func() (Session, error) {
		session, err := detections.NewModelSession(modelPath, meta, cfg.SessionThreads)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	pool, err := NewModelSessionPool(string(variant), factory, cfg.PoolSize, cfg.AcquireTimeout)
	if err != nil {
		return fail(err)
	}

	log.WithFields(logrus.Fields{
		"input_shape":  meta.InputShape,
		"output_shape": meta.OutputShape,
		"sessions":     cfg.PoolSize,
	}).Info("Model loaded")
	return meta, pool, pool
}

func buildArtifactStores(cfg *Config) (uploads, annots annotations.Store, err error) {
	switch cfg.ArtifactBackend {
	case "s3":
		base := annotations.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		}
		uploadCfg, annotCfg := base, base
		uploadCfg.Prefix = path.Join(cfg.S3Prefix, "uploads")
		annotCfg.Prefix = path.Join(cfg.S3Prefix, "annotations")

		if uploads, err = annotations.NewS3Store(uploadCfg); err != nil {
			return nil, nil, err
		}
		if annots, err = annotations.NewS3Store(annotCfg); err != nil {
			return nil, nil, err
		}
		return uploads, annots, nil
	default:
		if uploads, err = annotations.NewLocalStore(cfg.UploadDir); err != nil {
			return nil, nil, err
		}
		if annots, err = annotations.NewLocalStore(cfg.AnnotationDir); err != nil {
			return nil, nil, err
		}
		return uploads, annots, nil
	}
}

func buildHistory(ctx context.Context, cfg *Config) (history.Store, error) {
	switch cfg.HistoryBackend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDSN), 0o755); err != nil {
			return nil, err
		}
		return history.NewSQLStore(ctx, "sqlite3", cfg.HistoryDSN)
	case "postgres":
		return history.NewSQLStore(ctx, "postgres", cfg.HistoryDSN)
	case "redis":
		return history.NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.HistoryTTL)
	default:
		return history.Noop{}, nil
	}
}
