package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kartd/pkg/types"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the Turners Karts API"

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Classify(ctx context.Context, image string) (types.Prediction, error)
	ClassifyBytes(ctx context.Context, raw []byte) (types.Prediction, error)
	Status() types.StatusResponse
	Ready() bool
}

type api struct {
	svc Service
}

// NewMux builds the router with all routes and middleware.
func NewMux(svc Service) http.Handler {
	a := &api{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   corsAllowedHeaders,
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", a.handleRoot)
	r.Get("/health", a.handleHealth)
	r.Get("/status", a.handleStatus)
	r.Post("/predict", a.handlePredict)
	r.Post("/predict/image", a.handlePredictImage)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// handleRoot godoc
// @Summary      Welcome message
// @Tags         meta
// @Produce      json
// @Success      200  {object}  types.RootResponse
// @Router       / [get]
func (a *api) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.RootResponse{Message: WelcomeMessage})
}

// handleHealth godoc
// @Summary      Liveness probe
// @Tags         meta
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /health [get]
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "healthy"})
}

// handleStatus godoc
// @Summary      Predictor status
// @Description  Model state, artifact path, label set and counters.
// @Tags         meta
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Status())
}

// handlePredict godoc
// @Summary      Classify a kart photo
// @Description  Accepts a base64 image (data URL prefix allowed). When the model is unavailable a random label is returned with success=true.
// @Tags         predict
// @Accept       json
// @Produce      json
// @Param        request  body      types.PredictRequest  true  "Image payload"
// @Success      200      {object}  types.PredictResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Router       /predict [post]
func (a *api) handlePredict(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	observeRequestSize(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body struct {
		Image *string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Image == nil {
		writeJSONError(w, http.StatusBadRequest, "No image provided")
		return
	}
	a.classify(w, r, func(ctx context.Context) (types.Prediction, error) {
		return a.svc.Classify(ctx, *body.Image)
	})
}

// handlePredictImage godoc
// @Summary      Classify an uploaded kart photo
// @Description  Multipart variant of /predict; the file is read from the "image" field.
// @Tags         predict
// @Accept       mpfd
// @Produce      json
// @Param        image  formData  file  true  "Image file"
// @Success      200    {object}  types.PredictResponse
// @Failure      400    {object}  types.ErrorResponse
// @Failure      500    {object}  types.ErrorResponse
// @Router       /predict/image [post]
func (a *api) handlePredictImage(w http.ResponseWriter, r *http.Request) {
	observeRequestSize(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	f, _, err := r.FormFile("image")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read image file")
		return
	}
	a.classify(w, r, func(ctx context.Context) (types.Prediction, error) {
		return a.svc.ClassifyBytes(ctx, raw)
	})
}

// classify runs fn under a context joined with the server base context and
// writes the prediction or the mapped error.
func (a *api) classify(w http.ResponseWriter, r *http.Request, fn func(context.Context) (types.Prediction, error)) {
	start := time.Now()
	lvl := requestLogLevel(r)
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	pred, err := fn(ctx)
	if err != nil {
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logPredict(r, lvl, status, start, "", err)
		return
	}
	writeJSON(w, http.StatusOK, types.PredictResponse{Success: true, Predictions: &pred})
	logPredict(r, lvl, http.StatusOK, start, pred.KartType, nil)
}
