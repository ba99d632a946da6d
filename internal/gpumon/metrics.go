package gpumon

import "github.com/prometheus/client_golang/prometheus"

var (
	deviceDelta = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "gpumon",
			Name:      "device_delta_bytes",
			Help:      "GPU memory delta over the session baseline in bytes",
		},
		[]string{"session"},
	)

	peakDevice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "gpumon",
			Name:      "peak_device_bytes",
			Help:      "Peak GPU memory observed for the session in bytes",
		},
		[]string{"session"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "gpumon",
			Name:      "alerts_total",
			Help:      "Total threshold alerts raised",
		},
		[]string{"session", "severity"},
	)

	samplesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "gpumon",
			Name:      "samples_skipped_total",
			Help:      "Sampling cycles skipped due to sampler errors",
		},
		[]string{"session"},
	)
)

func init() {
	prometheus.MustRegister(deviceDelta, peakDevice, alertsTotal, samplesSkipped)
}
