package predictor

import "github.com/prometheus/client_golang/prometheus"

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartd",
			Subsystem: "predictor",
			Name:      "predictions_total",
			Help:      "Predictions served, by source (model or fallback) and kart type",
		},
		[]string{"source", "kart_type"},
	)

	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kartd",
			Subsystem: "predictor",
			Name:      "model_loads_total",
			Help:      "Model load attempts by result",
		},
		[]string{"result"},
	)

	invalidImagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kartd",
			Subsystem: "predictor",
			Name:      "invalid_images_total",
			Help:      "Requests rejected because the payload was not a decodable image",
		},
	)

	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kartd",
			Subsystem: "predictor",
			Name:      "inference_duration_seconds",
			Help:      "Time spent in preprocessing and model inference",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(predictionsTotal, modelLoadsTotal, invalidImagesTotal, inferenceDuration)
}
