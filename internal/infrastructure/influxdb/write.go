package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. A zero ts means now. Tags should be low
// cardinality; per-session values belong in fields.
// Points written after Close are dropped.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.queued.Add(1)
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
