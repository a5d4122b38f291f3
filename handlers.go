package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/Tutortoise/pneumonia-service/annotations"
	"github.com/Tutortoise/pneumonia-service/detections"
	"github.com/Tutortoise/pneumonia-service/history"
	"github.com/Tutortoise/pneumonia-service/logging"
	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type AppState struct {
	cfg        *Config
	log        *logrus.Logger
	segmenter  *detections.Segmenter
	classifier *detections.Classifier
	annotator  *annotations.Annotator
	uploads    annotations.Store
	// localAnnotations is set when annotations are served by this process.
	localAnnotations *annotations.LocalStore
	history          history.Store
	pools            []*ModelSessionPool
	loadErrors       map[models.Variant]error
	limiter          *rateLimiter
	startedAt        time.Time
}

type appDeps struct {
	segmenter   *detections.Segmenter
	classifier  *detections.Classifier
	uploads     annotations.Store
	annotations annotations.Store
	history     history.Store
	pools       []*ModelSessionPool
	loadErrors  map[models.Variant]error
}

func newAppState(cfg *Config, logger *logrus.Logger, deps appDeps) (*AppState, error) {
	annotator, err := annotations.NewAnnotator(annotations.DefaultLayout(), deps.annotations, detections.InputWidth)
	if err != nil {
		return nil, err
	}

	state := &AppState{
		cfg:        cfg,
		log:        logger,
		segmenter:  deps.segmenter,
		classifier: deps.classifier,
		annotator:  annotator,
		uploads:    deps.uploads,
		history:    deps.history,
		pools:      deps.pools,
		loadErrors: deps.loadErrors,
		startedAt:  time.Now(),
	}
	if local, ok := deps.annotations.(*annotations.LocalStore); ok {
		state.localAnnotations = local
	}
	if state.history == nil {
		state.history = history.Noop{}
	}
	if state.loadErrors == nil {
		state.loadErrors = map[models.Variant]error{}
	}
	if cfg.RateLimit > 0 {
		state.limiter = newRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return state, nil
}

func (s *AppState) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.loggingMiddleware, s.recoverMiddleware)

	api := r.NewRoute().Subrouter()
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware(s.limiter))
	}
	api.HandleFunc("/predict", s.handlePredict).Methods("POST")
	api.HandleFunc("/classify", s.handleClassify).Methods("POST")

	r.HandleFunc("/annotations/{name}", s.handleAnnotation).Methods("GET")
	r.HandleFunc("/predictions", s.handleHistoryList).Methods("GET")
	r.HandleFunc("/predictions/{id}", s.handleHistoryGet).Methods("GET")
	s.addMonitoringRoutes(r)
	return r
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
}

type PredictResponse struct {
	RequestID string          `json:"request_id"`
	Pred      int             `json:"pred"`
	Label     models.Label    `json:"label"`
	Conf      float64         `json:"conf"`
	URL       string          `json:"url"`
	Regions   []models.Region `json:"regions"`
	Message   string          `json:"message"`
}

type ClassifyResponse struct {
	RequestID   string             `json:"request_id"`
	Prediction  string             `json:"prediction"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

func (s *AppState) handlePredict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	requestID := logging.RequestID(ctx)
	timings := &models.ProcessingTimings{RequestID: requestID}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	upload, err := readUpload(r, s.cfg.MaxUploadBytes)
	if err != nil {
		s.fail(w, r, "predict", err)
		return
	}

	decodeStart := time.Now()
	img, _, err := detections.DecodeImage(upload.Data)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		s.fail(w, r, "predict", err)
		return
	}

	artifactID := annotations.NewID()
	if _, err := s.uploads.Save(ctx, annotations.UploadName(artifactID, upload.Filename), upload.Data, upload.ContentType); err != nil {
		s.fail(w, r, "predict", fmt.Errorf("%w: save upload: %w", ErrStorage, err))
		return
	}

	seg, err := s.segmenter.Segment(ctx, img, timings)
	if err != nil {
		s.fail(w, r, "predict", err)
		return
	}

	ref, err := s.annotator.Annotate(ctx, artifactID, seg.Input.Stretch().Image(), seg.Outcome, timings)
	if err != nil {
		s.fail(w, r, "predict", fmt.Errorf("%w: %w", ErrStorage, err))
		return
	}

	url := ref
	if s.localAnnotations != nil {
		url = "/annotations/" + artifactID + ".png"
	}

	outcome := seg.Outcome
	s.record(ctx, models.PredictionRecord{
		ID:            artifactID,
		RequestID:     requestID,
		Variant:       models.VariantSegmentation,
		Filename:      upload.Filename,
		Label:         string(outcome.Label),
		Confidence:    outcome.Confidence,
		RegionCount:   len(outcome.Regions),
		AnnotationRef: url,
		CreatedAt:     time.Now().UTC(),
	})

	timings.Total = time.Since(startTotal)
	s.logTimings(timings)

	pred := 0
	if outcome.Positive {
		pred = 1
	}
	writeJSON(w, http.StatusOK, PredictResponse{
		RequestID: requestID,
		Pred:      pred,
		Label:     outcome.Label,
		Conf:      outcome.Confidence,
		URL:       url,
		Regions:   outcome.Regions,
		Message:   getPredictionMessage(outcome),
	})
}

func (s *AppState) handleClassify(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	requestID := logging.RequestID(ctx)
	timings := &models.ProcessingTimings{RequestID: requestID}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	upload, err := readUpload(r, s.cfg.MaxUploadBytes)
	if err != nil {
		s.fail(w, r, "classify", err)
		return
	}

	decodeStart := time.Now()
	img, _, err := detections.DecodeImage(upload.Data)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		s.fail(w, r, "classify", err)
		return
	}

	outcome, err := s.classifier.Classify(ctx, img, timings)
	if err != nil {
		s.fail(w, r, "classify", err)
		return
	}

	s.record(ctx, models.PredictionRecord{
		ID:         annotations.NewID(),
		RequestID:  requestID,
		Variant:    models.VariantClassifier,
		Filename:   upload.Filename,
		Label:      outcome.Label,
		Confidence: float64(outcome.Confidence),
		CreatedAt:  time.Now().UTC(),
	})

	timings.Total = time.Since(startTotal)
	s.logTimings(timings)

	writeJSON(w, http.StatusOK, ClassifyResponse{
		RequestID:   requestID,
		Prediction:  outcome.Label,
		Confidence:  outcome.Confidence,
		Predictions: outcome.Probabilities,
	})
}

// record stores a history entry. A history failure never fails the request.
func (s *AppState) record(ctx context.Context, rec models.PredictionRecord) {
	if err := s.history.Record(ctx, rec); err != nil {
		logging.WithRequestID(ctx, s.log).WithFields(logrus.Fields{
			"operation": "history",
			"error":     err.Error(),
		}).Warn("failed to record prediction")
	}
}

func (s *AppState) handleAnnotation(w http.ResponseWriter, r *http.Request) {
	if s.localAnnotations == nil {
		sendErrorResponse(w, "not_found", "Annotations are not served by this instance", "", http.StatusNotFound)
		return
	}

	name := mux.Vars(r)["name"]
	if path.Ext(name) != ".png" {
		s.fail(w, r, "annotation", fmt.Errorf("%w: %q", annotations.ErrInvalidName, name))
		return
	}
	file, err := s.localAnnotations.Path(name)
	if err != nil {
		s.fail(w, r, "annotation", err)
		return
	}
	if _, err := os.Stat(file); err != nil {
		sendErrorResponse(w, "not_found", "Annotation not found", name, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, file)
}

func (s *AppState) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, "history", fmt.Errorf("%w: limit must be a positive integer", ErrInvalidRequest))
			return
		}
		limit = n
	}

	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, r, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": recs,
		"count":       len(recs),
	})
}

func (s *AppState) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	pools := make([]PoolStats, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p.GetMetrics())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools":          pools,
		"cpu_features":   detections.Features(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	variants := map[models.Variant]string{
		models.VariantSegmentation: "ready",
		models.VariantClassifier:   "ready",
	}
	for variant, err := range s.loadErrors {
		if err != nil {
			status = "degraded"
			variants[variant] = "unavailable: " + err.Error()
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"models": variants,
	})
}

func (s *AppState) logTimings(t *models.ProcessingTimings) {
	if !s.cfg.Debug {
		return
	}
	s.log.WithFields(logrus.Fields{
		"request_id":   t.RequestID,
		"image_decode": t.ImageDecode.String(),
		"resize":       t.Resize.String(),
		"preprocess":   t.Preprocess.String(),
		"inference":    t.Inference.String(),
		"postprocess":  t.Postprocess.String(),
		"labeling":     t.Labeling.String(),
		"render":       t.Render.String(),
		"persist":      t.Persist.String(),
		"total":        t.Total.String(),
	}).Debug("Processing times")
}
