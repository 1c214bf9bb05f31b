package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns) }

var dbPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Postgres pool connections by state, sampled with queue depth.",
	},
	[]string{"state"},
)

// SetDBPoolStats records a pgxpool.Stat snapshot.
func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("in_use").Set(float64(inUse))
}
