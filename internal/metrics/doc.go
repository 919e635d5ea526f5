// Package metrics counts downloads, pipeline outcomes and stage durations.
//
// Prom keeps its collectors on a private registry so that a one-shot CLI run
// can dump them with WriteTextfile for the node_exporter textfile collector.
package metrics
