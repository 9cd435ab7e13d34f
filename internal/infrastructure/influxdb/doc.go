// Package influxdb provides time-series storage for sensor telemetry.
//
// SQLite keeps the latest snapshot per device for fast API reads; this
// package records the full history in InfluxDB for dashboards and
// trend queries. Writes are non-blocking and batched, so a slow or
// unavailable InfluxDB never stalls ingest.
package influxdb
