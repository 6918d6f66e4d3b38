package predictor

import "github.com/rs/zerolog"

// LogPublisher writes events to a zerolog logger at debug level, with load
// failures at warn.
type LogPublisher struct {
	Log zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Log.Debug()
	if e.Name == EventModelLoadFailed {
		ev = p.Log.Warn()
	}
	ev.Str("event", e.Name).Str("model_path", e.ModelPath).Fields(e.Fields).Msg("predictor event")
}
