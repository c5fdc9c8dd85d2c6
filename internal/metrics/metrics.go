// Package metrics provides Prometheus metrics for DocuFlex.
package metrics

import (
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	permissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflex_permission_checks_total",
			Help: "Total permission checks by result",
		},
		[]string{"action", "result"},
	)

	treeMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflex_tree_mutations_total",
			Help: "Total tree mutations by operation and status",
		},
		[]string{"operation", "status"},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docuflex_tree_size",
			Help: "Number of items in the current tree snapshot",
		},
	)

	importUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflex_import_units_total",
			Help: "Total sheet import units by outcome",
		},
		[]string{"status"},
	)

	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docuflex_ai_request_duration_seconds",
			Help:    "AI collaborator request duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"flow", "status"},
	)

	aiCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflex_ai_cache_lookups_total",
			Help: "Semantic search cache lookups by result",
		},
		[]string{"result"},
	)

	blobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflex_blob_operations_total",
			Help: "Total blob store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	eventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docuflex_events_dropped_total",
			Help: "Tree events dropped because a subscriber was full",
		},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docuflex_upload_bytes_total",
			Help: "Total bytes accepted through uploads",
		},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordPermissionCheck records a permission decision.
func RecordPermissionCheck(action string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	permissionChecksTotal.WithLabelValues(action, result).Inc()
}

// RecordTreeMutation records a tree mutation attempt.
func RecordTreeMutation(operation string, success bool) {
	treeMutationsTotal.WithLabelValues(operation, status(success)).Inc()
}

// SetTreeSize sets the current number of items in the tree.
func SetTreeSize(size int) {
	treeSize.Set(float64(size))
}

// RecordImportUnit records the terminal status of an import unit.
func RecordImportUnit(outcome string) {
	importUnitsTotal.WithLabelValues(outcome).Inc()
}

// RecordAIRequest records an AI collaborator call.
func RecordAIRequest(flow string, duration time.Duration, success bool) {
	aiRequestDuration.WithLabelValues(flow, status(success)).Observe(duration.Seconds())
}

// RecordAICacheLookup records a cache hit or miss.
func RecordAICacheLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	aiCacheTotal.WithLabelValues(result).Inc()
}

// RecordBlobOperation records a blob store operation.
func RecordBlobOperation(backend, operation string, success bool) {
	blobOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordEventDropped counts one event a subscriber never received.
func RecordEventDropped() {
	eventsDroppedTotal.Inc()
}

// RecordUpload records accepted upload bytes.
func RecordUpload(bytes int) {
	uploadBytesTotal.Add(float64(bytes))
}

// WriteText writes every docuflex_ metric family in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "docuflex_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
