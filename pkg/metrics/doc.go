/*
Package metrics registers the coordinator's Prometheus metrics and exposes
them over /metrics via promhttp.

Metrics Catalog

mkv_api_requests_total{method,status}: Counter, total coordinator API
requests by HTTP method and response status.

mkv_api_request_duration_seconds{method}: Histogram, coordinator API
request latency by method.

mkv_replication_put_total{outcome}: Counter, replicated PUTs by outcome
("committed", "rolled_back").

mkv_replication_delete_total{outcome}: Counter, replicated DELETEs by
outcome ("unlinked", "purged", "retry").

mkv_replication_put_duration_seconds: Histogram, time to fan a PUT out to
all chosen volumes and reach quorum.

mkv_volume_orphans_total{volume}: Counter, blobs left behind on a volume
after a failed rollback DELETE.

mkv_rebalanced_keys_total / mkv_rebalance_failures_total: Counters for the
rebalance operation's key-level outcomes.

mkv_multipart_uploads_active: Gauge, multipart uploads currently registered
in the upload-id table.

# Usage

	timer := metrics.NewTimer()
	err := coordinator.Put(ctx, key, body)
	timer.ObserveDuration(metrics.ReplicationPutDuration)
	if err != nil {
		metrics.ReplicationPutTotal.WithLabelValues("rolled_back").Inc()
	} else {
		metrics.ReplicationPutTotal.WithLabelValues("committed").Inc()
	}
*/
package metrics
