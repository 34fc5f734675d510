/*
Package metrics exposes Prometheus instrumentation and a lightweight
component-health registry for the update pipeline and dump subsystem.

# Metrics

	latticed_updates_enqueued_total{index}    - counter, RegisterUpdate calls that committed
	latticed_updates_processed_total{index}   - counter, updates that reached Processed
	latticed_updates_failed_total{index}      - counter, updates that reached Failed
	latticed_update_processing_seconds        - histogram, writer-thread apply latency
	latticed_update_store_pending             - gauge, pending-queue depth across all indexes
	latticed_inbox_depth                      - gauge, Update Loop inbox occupancy
	latticed_handlers_in_flight               - gauge, Update Loop concurrent handlers
	latticed_dumps_total{status}              - counter, dump jobs by terminal status
	latticed_dump_duration_seconds            - histogram, end-to-end dump duration
	latticed_filestore_bytes                  - gauge, bytes held by the Update File Store (registered, never set: reads 0)

# Health

A process-wide HealthChecker tracks named components (e.g. "updatestore",
"filestore", "dump-actor"); RegisterComponent/UpdateComponent report status,
GetHealth/GetReadiness aggregate it, and HealthHandler/ReadyHandler/
LivenessHandler expose it over HTTP.
*/
package metrics
