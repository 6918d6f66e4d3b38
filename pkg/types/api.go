package types

// PredictRequest is the payload of POST /predict.
type PredictRequest struct {
	// Base64 encoded image. A data URL prefix ("data:image/jpeg;base64,") is accepted and stripped.
	// example: data:image/png;base64,iVBORw0KGgo...
	Image string `json:"image" example:"data:image/png;base64,iVBORw0KGgo..."`
}

// PredictResponse is the result of a prediction. On success Predictions is set;
// otherwise Error carries the reason.
type PredictResponse struct {
	// Whether a prediction was produced.
	// example: true
	Success bool `json:"success" example:"true"`
	// Predicted kart type and confidence.
	Predictions *Prediction `json:"predictions,omitempty"`
	// Failure reason when success is false.
	// example: Invalid image data
	Error string `json:"error,omitempty" example:"Invalid image data"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: Invalid image data
	Error string `json:"error" example:"Invalid image data"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: healthy
	Status string `json:"status" example:"healthy"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	// example: Welcome to the Turners Karts API
	Message string `json:"message" example:"Welcome to the Turners Karts API"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Model lifecycle state (unloaded, loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Path of the model artifact.
	// example: model/kart_insurance_model.kart
	ModelPath string `json:"model_path" example:"model/kart_insurance_model.kart"`
	// Labels the service predicts over.
	Labels []string `json:"labels"`
	// Whether the model is loaded once and reused across requests.
	// example: true
	CacheModel bool `json:"cache_model" example:"true"`
	// Last model error observed (load or inference), if any.
	LastError string `json:"last_error,omitempty"`
	// Total successful model loads.
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Total failed model loads.
	// example: 0
	LoadFailuresTotal uint64 `json:"load_failures_total" example:"0"`
	// Predictions answered by the model.
	// example: 42
	PredictionsTotal uint64 `json:"predictions_total" example:"42"`
	// Predictions answered by the random fallback.
	// example: 3
	FallbacksTotal uint64 `json:"fallbacks_total" example:"3"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
