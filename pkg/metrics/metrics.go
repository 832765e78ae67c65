package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PicksGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_picks_generated_total",
		Help: "Picks generated, by league",
	}, []string{"league"})

	GenerationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_pick_generation_failures_total",
		Help: "Pick generation failures, by stage",
	}, []string{"stage"})

	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_llm_requests_total",
		Help: "LLM completion requests, by provider and outcome",
	}, []string{"provider", "outcome"})

	AnalysisParseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gary_analysis_parse_failures_total",
		Help: "LLM responses that failed JSON extraction or schema validation",
	})

	ProxyCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_proxy_cache_hits_total",
		Help: "Proxy responses served from cache, by proxy",
	}, []string{"proxy"})

	ProxyCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_proxy_cache_misses_total",
		Help: "Proxy requests forwarded upstream, by proxy",
	}, []string{"proxy"})

	MockFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_odds_mock_fallbacks_total",
		Help: "Odds gateway failures substituted with mock games, by sport key",
	}, []string{"sport"})

	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gary_webhook_events_total",
		Help: "Payment webhook events, by type and result",
	}, []string{"type", "result"})
)

func init() {
	prometheus.MustRegister(
		PicksGenerated,
		GenerationFailures,
		LLMRequests,
		AnalysisParseFailures,
		ProxyCacheHits,
		ProxyCacheMisses,
		MockFallbacks,
		WebhookEvents,
	)
}

// Handler exposes the registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
