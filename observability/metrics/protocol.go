package metrics

import (
	"context"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ProtocolMetrics tracks the season-level state of the protocol engines.
type ProtocolMetrics struct {
	season          prometheus.Gauge
	soil            prometheus.Gauge
	temperature     prometheus.Gauge
	caseID          prometheus.Gauge
	mintedBeans     prometheus.Counter
	sownBeans       prometheus.Counter
	harvestedBeans  prometheus.Counter
	oracleFailures  *prometheus.CounterVec
	convertPenalty  *prometheus.CounterVec
	convertBonus    prometheus.Counter
	sunriseDuration prometheus.Histogram

	// OTLP mirrors of the season step and oracle failure signals.
	sunriseCounter   metric.Int64Counter
	oracleCounter    metric.Int64Counter
	durationRecorder metric.Float64Histogram
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			season: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "beanstalk_season",
				Help: "Current season number.",
			}),
			soil: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "beanstalk_soil",
				Help: "Soil issued at the latest sunrise, in bean base units.",
			}),
			temperature: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "beanstalk_temperature",
				Help: "Maximum temperature at 1e6 precision.",
			}),
			caseID: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "beanstalk_case_id",
				Help: "Weather case selected at the latest sunrise.",
			}),
			mintedBeans: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "beanstalk_minted_beans_total",
				Help: "Beans minted by sunrise above peg.",
			}),
			sownBeans: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "beanstalk_sown_beans_total",
				Help: "Beans sown into the field.",
			}),
			harvestedBeans: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "beanstalk_harvested_beans_total",
				Help: "Beans paid out by harvests.",
			}),
			oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "beanstalk_oracle_failures_total",
				Help: "Oracle source failures by pool; the pool contributed zero deltaB.",
			}, []string{"pool"}),
			convertPenalty: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "beanstalk_convert_penalty_stalk_total",
				Help: "Grown stalk forfeited by converts by convert kind.",
			}, []string{"kind"}),
			convertBonus: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "beanstalk_convert_bonus_stalk_total",
				Help: "Grown stalk granted to toward-peg converts below peg.",
			}),
			sunriseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "beanstalk_sunrise_duration_seconds",
				Help:    "Wall time spent executing sunrise.",
				Buckets: prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.season,
			protocolRegistry.soil,
			protocolRegistry.temperature,
			protocolRegistry.caseID,
			protocolRegistry.mintedBeans,
			protocolRegistry.sownBeans,
			protocolRegistry.harvestedBeans,
			protocolRegistry.oracleFailures,
			protocolRegistry.convertPenalty,
			protocolRegistry.convertBonus,
			protocolRegistry.sunriseDuration,
		)
		protocolRegistry.initMeter()
	})
	return protocolRegistry
}

func (m *ProtocolMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("beanstalk/protocol")
	sunrises, err := meter.Int64Counter("beanstalk.sunrises")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("beanstalk/protocol")
		sunrises, _ = meter.Int64Counter("beanstalk.sunrises")
	}
	oracle, err := meter.Int64Counter("beanstalk.oracle.failures")
	if err != nil {
		oracle, _ = noop.NewMeterProvider().Meter("beanstalk/protocol").Int64Counter("beanstalk.oracle.failures")
	}
	duration, err := meter.Float64Histogram("beanstalk.sunrise.duration", metric.WithUnit("s"))
	if err != nil {
		duration, _ = noop.NewMeterProvider().Meter("beanstalk/protocol").Float64Histogram("beanstalk.sunrise.duration")
	}
	m.sunriseCounter = sunrises
	m.oracleCounter = oracle
	m.durationRecorder = duration
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

func (m *ProtocolMetrics) SetSeason(season uint32) {
	if m == nil {
		return
	}
	m.season.Set(float64(season))
}

func (m *ProtocolMetrics) SetSoil(soil *uint256.Int) {
	if m == nil {
		return
	}
	m.soil.Set(toFloat(soil))
}

func (m *ProtocolMetrics) SetTemperature(temp uint64) {
	if m == nil {
		return
	}
	m.temperature.Set(float64(temp))
}

func (m *ProtocolMetrics) SetCaseID(caseID uint8) {
	if m == nil {
		return
	}
	m.caseID.Set(float64(caseID))
}

func (m *ProtocolMetrics) ObserveMinted(beans *uint256.Int) {
	if m == nil {
		return
	}
	m.mintedBeans.Add(toFloat(beans))
}

func (m *ProtocolMetrics) ObserveSown(beans *uint256.Int) {
	if m == nil {
		return
	}
	m.sownBeans.Add(toFloat(beans))
}

func (m *ProtocolMetrics) ObserveHarvested(beans *uint256.Int) {
	if m == nil {
		return
	}
	m.harvestedBeans.Add(toFloat(beans))
}

func (m *ProtocolMetrics) IncOracleFailure(pool string) {
	if m == nil {
		return
	}
	if pool == "" {
		pool = "unknown"
	}
	m.oracleFailures.WithLabelValues(pool).Inc()
	if m.oracleCounter != nil {
		m.oracleCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("pool", pool)))
	}
}

func (m *ProtocolMetrics) ObserveConvertPenalty(kind string, stalk *uint256.Int) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.convertPenalty.WithLabelValues(kind).Add(toFloat(stalk))
}

func (m *ProtocolMetrics) ObserveConvertBonus(stalk *uint256.Int) {
	if m == nil {
		return
	}
	m.convertBonus.Add(toFloat(stalk))
}

func (m *ProtocolMetrics) ObserveSunriseDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sunriseDuration.Observe(seconds)
	if m.sunriseCounter != nil {
		m.sunriseCounter.Add(context.Background(), 1)
	}
	if m.durationRecorder != nil {
		m.durationRecorder.Record(context.Background(), seconds)
	}
}
