package monitoring

import (
	"net/http"
	"strconv"

	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rtdp"

// Metrics holds the Prometheus metrics of an aggregator.
type Metrics struct {
	registry *prometheus.Registry

	SourcesAdmitted prometheus.Counter
	SourcesRejected prometheus.Counter
	StreamsEnded    *prometheus.CounterVec
}

// NewMetrics creates the metrics. Channel fill levels are read from
// channels at every scrape.
func NewMetrics(channels func() []channel.Channel) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SourcesAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "sources_admitted_total",
			Help:      "Number of channels created for admitted sources",
		}),

		SourcesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "sources_rejected_total",
			Help:      "Number of connections refused during admission",
		}),

		StreamsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ended_total",
			Help:      "Number of source streams that ended, by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.SourcesAdmitted,
		m.SourcesRejected,
		m.StreamsEnded,
		newLevelCollector(channels),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type levelCollector struct {
	channels func() []channel.Channel

	inputLevel  *prometheus.Desc
	outputLevel *prometheus.Desc
	recordID    *prometheus.Desc
}

func newLevelCollector(channels func() []channel.Channel) *levelCollector {
	return &levelCollector{
		channels: channels,
		inputLevel: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "input_fill_percent"),
			"Fill level of the inbound buffer of a channel",
			[]string{"channel"}, nil),
		outputLevel: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "output_fill_percent"),
			"Fill level of an outbound buffer of a channel",
			[]string{"channel", "buffer"}, nil),
		recordID: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "record_id"),
			"Id of the last record delivered to a channel",
			[]string{"channel"}, nil),
	}
}

func (c *levelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inputLevel
	ch <- c.outputLevel
	ch <- c.recordID
}

func (c *levelCollector) Collect(ch chan<- prometheus.Metric) {
	for _, channel := range c.channels() {
		name := channel.Name()

		ch <- prometheus.MustNewConstMetric(c.inputLevel,
			prometheus.GaugeValue, float64(channel.InputLevel()), name)

		for i, level := range channel.OutputLevels() {
			ch <- prometheus.MustNewConstMetric(c.outputLevel,
				prometheus.GaugeValue, float64(level), name, strconv.Itoa(i))
		}

		ch <- prometheus.MustNewConstMetric(c.recordID,
			prometheus.GaugeValue, float64(channel.RecordID()), name)
	}
}
