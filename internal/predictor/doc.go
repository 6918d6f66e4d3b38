// Package predictor orchestrates a single kart prediction: decode the
// payload, preprocess it, run the cached classifier and pick the top class.
// It is structured into small files by concern:
//
//   - predictor.go: Predictor type, Classify/Predict entry points and the model cache.
//   - config.go: Config and package defaults; New applies defaults.
//   - fallback.go: the random fallback used when the model is unavailable.
//   - errors.go: error types and helpers (IsInvalidImage, IsModelUnavailable).
//   - events.go, eventpub_memory.go, eventpub_log.go: lifecycle events.
//   - status_report.go: Status reporting for /status.
//   - metrics.go: Prometheus collectors.
//
// Model failures never fail a request. When the artifact is missing, cannot
// be loaded or errors during inference, the predictor answers with a label
// chosen uniformly at random and a confidence drawn from [0.85, 0.99]. Only
// undecodable images are reported as failures.
package predictor
