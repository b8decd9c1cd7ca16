package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whisper_adapter"

// Collector exports Recorder totals as Prometheus metrics. Values are read
// from a fresh snapshot on every scrape.
type Collector struct {
	recorder *Recorder

	streams         *prometheus.Desc
	activeStreams   *prometheus.Desc
	segments        *prometheus.Desc
	bytes           *prometheus.Desc
	transcripts     *prometheus.Desc
	flushes         *prometheus.Desc
	decodes         *prometheus.Desc
	decodedSamples  *prometheus.Desc
	decodedSegments *prometheus.Desc
	decodeSeconds   *prometheus.Desc
	inferenceSecs   *prometheus.Desc
}

// NewCollector wraps r. Register the result with a prometheus.Registerer.
func NewCollector(r *Recorder) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		recorder:        r,
		streams:         desc("streams_total", "Transcription streams opened."),
		activeStreams:   desc("streams_active", "Transcription streams currently open."),
		segments:        desc("segments_total", "Audio segments received."),
		bytes:           desc("audio_bytes_total", "PCM bytes received."),
		transcripts:     desc("transcripts_total", "Transcripts emitted.", "final"),
		flushes:         desc("flushes_total", "Stream flushes."),
		decodes:         desc("decodes_total", "Native decode calls.", "result"),
		decodedSamples:  desc("decoded_samples_total", "Samples passed to successful decodes."),
		decodedSegments: desc("decoded_segments_total", "Segments produced by successful decodes."),
		decodeSeconds:   desc("decode_seconds_total", "Wall time spent in native decode calls."),
		inferenceSecs:   desc("inference_seconds_total", "Engine time observed by streams."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.streams, c.activeStreams, c.segments, c.bytes, c.transcripts, c.flushes,
		c.decodes, c.decodedSamples, c.decodedSegments, c.decodeSeconds, c.inferenceSecs,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.recorder.Snapshot()
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	counter(c.streams, float64(s.TotalStreams))
	ch <- prometheus.MustNewConstMetric(c.activeStreams, prometheus.GaugeValue, float64(s.ActiveStreams))
	counter(c.segments, float64(s.TotalSegments))
	counter(c.bytes, float64(s.TotalBytes))
	counter(c.transcripts, float64(s.TotalTranscripts-s.TotalFinalTranscripts), "false")
	counter(c.transcripts, float64(s.TotalFinalTranscripts), "true")
	counter(c.flushes, float64(s.TotalFlushes))
	counter(c.decodes, float64(s.TotalDecodes-s.FailedDecodes), "ok")
	counter(c.decodes, float64(s.FailedDecodes), "error")
	counter(c.decodedSamples, float64(s.DecodedSamples))
	counter(c.decodedSegments, float64(s.DecodedSegments))
	counter(c.decodeSeconds, s.DecodeTime.Seconds())
	counter(c.inferenceSecs, s.InferenceTime.Seconds())
}
