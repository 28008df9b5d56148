package introspect

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/dataflow/internal/optree"
)

// workerCounter is implemented by operators that count rows per worker.
type workerCounter interface {
	Processed() []int64
}

// treeCollector exports the connector state of every reachable node each
// time it is scraped.
type treeCollector struct {
	tree *optree.Tree

	queued    *prometheus.Desc
	capacity  *prometheus.Desc
	pushed    *prometheus.Desc
	state     *prometheus.Desc
	processed *prometheus.Desc
}

func newTreeCollector(tree *optree.Tree) *treeCollector {
	labels := []string{"node"}
	return &treeCollector{
		tree:      tree,
		queued:    prometheus.NewDesc("dataflow_connector_queued_messages", "Messages waiting in the output connector of a node.", labels, nil),
		capacity:  prometheus.NewDesc("dataflow_connector_capacity_messages", "Queue slots of the output connector of a node.", labels, nil),
		pushed:    prometheus.NewDesc("dataflow_connector_pushed_messages_total", "Messages pushed to the output connector of a node.", labels, nil),
		state:     prometheus.NewDesc("dataflow_node_state", "Worker state of a node: 0 idle, 1 running, 2 terminated.", labels, nil),
		processed: prometheus.NewDesc("dataflow_worker_rows_processed_total", "Rows transformed by one worker of a node.", []string{"node", "worker"}, nil),
	}
}

func (c *treeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queued
	ch <- c.capacity
	ch <- c.pushed
	ch <- c.state
	ch <- c.processed
}

func (c *treeCollector) Collect(ch chan<- prometheus.Metric) {
	for n := range c.tree.PreOrder() {
		name := n.NameWithID()
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(n.State()), name)
		if n.Connector() != nil {
			ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(n.ConnectorSize()), name)
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(n.ConnectorCapacity()), name)
			ch <- prometheus.MustNewConstMetric(c.pushed, prometheus.CounterValue, float64(n.ConnectorOutBufferCount()), name)
		}
		if wc, ok := n.Operator().(workerCounter); ok {
			for w, rows := range wc.Processed() {
				ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(rows), name, strconv.Itoa(w))
			}
		}
	}
}
