package resilience

import (
	"context"

	"github.com/MrWong99/voxcast/internal/observe"
	"github.com/MrWong99/voxcast/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens each stream on the first
// healthy provider of its group.
type STTFallback struct {
	group   *FallbackGroup[stt.Provider]
	metrics *observe.Metrics
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback preferring primary. A nil metrics
// selects [observe.DefaultMetrics].
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig, metrics *observe.Metrics) *STTFallback {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &STTFallback{
		group:   NewFallbackGroup(primary, primaryName, cfg),
		metrics: metrics,
	}
}

// AddFallback registers another provider, tried after the earlier ones.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// States reports the breaker state per provider.
func (f *STTFallback) States() map[string]State { return f.group.States() }

// StartStream implements [stt.Provider]. Only opening the stream fails over;
// an established session stays on its provider.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(name string, p stt.Provider) (stt.SessionHandle, error) {
		h, err := p.StartStream(ctx, cfg)
		if err != nil {
			f.metrics.RecordProviderRequest(ctx, name, "stt", "error")
			f.metrics.RecordProviderError(ctx, name, "stt")
			return nil, err
		}
		f.metrics.RecordProviderRequest(ctx, name, "stt", "ok")
		return h, nil
	})
}
