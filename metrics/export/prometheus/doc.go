// Package prometheus renders authsync metrics in the Prometheus text
// exposition format. Counters are named authsync_*_total and the role fetch
// latency histogram is authsync_role_fetch_latency_seconds.
//
// Nothing is registered globally; callers mount Handler where they want it.
package prometheus
