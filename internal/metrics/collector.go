package metrics

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"royaltyPool/internal/events"
	"royaltyPool/internal/pool"
)

// Collector turns pool events and runner progress into prometheus metrics. It is an
// events.Emitter and an indexer.BatchObserver.
type Collector struct {
	registry *prometheus.Registry

	swaps            *prometheus.CounterVec
	reserveVolume    *prometheus.CounterVec
	secondaryVolume  *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	royaltyAccrued   prometheus.Counter
	royaltyWithdrawn prometheus.Counter
	royaltyBalance   prometheus.Gauge
	rate             prometheus.Gauge
	indexedLogs      prometheus.Counter
	lastBlock        prometheus.Gauge
}

// NewCollector registers every metric on a fresh registry under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "royalty_pool"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Successful swaps by direction.",
		}, []string{"direction"}),
		reserveVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reserve_volume_total",
			Help:      "Reserve token units moved by swaps, gross on deposit and net on redeem.",
		}, []string{"direction"}),
		secondaryVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secondary_volume_total",
			Help:      "Secondary token units minted or burned by swaps.",
		}, []string{"direction"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_operations_total",
			Help:      "Rejected ledger operations by operation and error code.",
		}, []string{"op", "code"}),
		royaltyAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "royalty_accrued_total",
			Help:      "Royalty accrued in reserve token units.",
		}),
		royaltyWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "royalty_withdrawn_total",
			Help:      "Royalty withdrawn by the owner in reserve token units.",
		}),
		royaltyBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "royalty_balance",
			Help:      "Current royalty balance in reserve token units.",
		}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exchange_rate",
			Help:      "Secondary units per reserve unit.",
		}),
		indexedLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_logs_total",
			Help:      "Pool logs stored by the indexer.",
		}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_block",
			Help:      "Last block covered by the indexer.",
		}),
	}
	c.registry.MustRegister(
		c.swaps, c.reserveVolume, c.secondaryVolume, c.rejections,
		c.royaltyAccrued, c.royaltyWithdrawn, c.royaltyBalance, c.rate,
		c.indexedLogs, c.lastBlock,
	)
	return c
}

// Registry exposes the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Emit records a pool event.
func (c *Collector) Emit(evt events.Event) {
	switch typed := evt.(type) {
	case pool.Swapped:
		direction := pool.DirectionReserveToSecondary.String()
		c.swaps.WithLabelValues(direction).Inc()
		c.reserveVolume.WithLabelValues(direction).Add(toFloat(typed.ReserveAmount))
		c.secondaryVolume.WithLabelValues(direction).Add(toFloat(typed.SecondaryAmount))
		c.addRoyalty(typed.Royalty)
	case pool.Redeemed:
		direction := pool.DirectionSecondaryToReserve.String()
		c.swaps.WithLabelValues(direction).Inc()
		c.reserveVolume.WithLabelValues(direction).Add(toFloat(typed.ReserveAmount))
		c.secondaryVolume.WithLabelValues(direction).Add(toFloat(typed.SecondaryAmount))
		c.addRoyalty(typed.Royalty)
	case pool.RateUpdated:
		c.rate.Set(toFloat(typed.NewRate))
	case pool.RoyaltiesWithdrawn:
		amount := toFloat(typed.Amount)
		c.royaltyWithdrawn.Add(amount)
		c.royaltyBalance.Sub(amount)
	}
}

func (c *Collector) addRoyalty(royalty *big.Int) {
	amount := toFloat(royalty)
	c.royaltyAccrued.Add(amount)
	c.royaltyBalance.Add(amount)
}

// SetPoolState seeds the gauges from a pool read, e.g. after a resume.
func (c *Collector) SetPoolState(rate, royaltyBalance *big.Int) {
	c.rate.Set(toFloat(rate))
	c.royaltyBalance.Set(toFloat(royaltyBalance))
}

// ObserveRejection counts a rejected operation.
func (c *Collector) ObserveRejection(op, code string) {
	c.rejections.WithLabelValues(op, code).Inc()
}

// ObserveIndexedLogs records indexer progress.
func (c *Collector) ObserveIndexedLogs(count int, lastBlock uint64) {
	c.indexedLogs.Add(float64(count))
	c.lastBlock.Set(float64(lastBlock))
}

// WriteTextfile writes the current metrics in the text exposition format, for the node
// exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// toFloat converts a token amount for metrics. Precision loss above 2^53 is accepted.
func toFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
