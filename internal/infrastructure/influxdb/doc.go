// Package influxdb records session metrics in InfluxDB v2 using
// github.com/influxdata/influxdb-client-go/v2.
//
// Writes go through the client's non-blocking, batched write API; failures
// surface asynchronously through SetOnError. Close flushes whatever is
// still buffered, so a short-lived runner does not lose its last points.
package influxdb
