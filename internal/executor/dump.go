package executor

import (
	"time"

	"gopkg.in/yaml.v3"
)

type dumpEdge struct {
	To       string `yaml:"to"`
	Backward bool   `yaml:"backward,omitempty"`
}

type dumpNode struct {
	Name            string        `yaml:"name"`
	Status          string        `yaml:"status"`
	LastPrepare     string        `yaml:"last_prepare"`
	Jobs            uint64        `yaml:"jobs"`
	ExecutionTime   time.Duration `yaml:"execution_time"`
	PreparationTime time.Duration `yaml:"preparation_time"`
	Edges           []dumpEdge    `yaml:"edges,omitempty"`
}

type dumpDoc struct {
	Nodes            []dumpNode `yaml:"nodes"`
	QueuedTasks      int        `yaml:"queued_tasks"`
	QueuedQuotaTasks int        `yaml:"queued_quota_tasks"`
	Cancelled        bool       `yaml:"cancelled"`
	Finished         bool       `yaml:"finished"`
}

// Dump renders the current graph and scheduling state as YAML. It is a
// best-effort snapshot meant for diagnostics; calling it on a running
// pipeline observes each node at a slightly different instant.
func (e *Executor) Dump() (string, error) {
	size := e.graphSize()
	doc := dumpDoc{
		Cancelled: e.cancelled.Load(),
		Finished:  e.finished.Load(),
	}

	for pid := uint64(0); pid < size; pid++ {
		n := e.node(pid)
		n.statusMu.Lock()
		dn := dumpNode{
			Name:            n.processor.Name(),
			Status:          n.status.String(),
			LastPrepare:     n.lastPrepareStatus.String(),
			Jobs:            n.state.numExecutedJobs.Load(),
			ExecutionTime:   time.Duration(n.state.executionTime.Load()),
			PreparationTime: time.Duration(n.state.preparationTime.Load()),
		}
		for _, ed := range n.directEdges {
			dn.Edges = append(dn.Edges, dumpEdge{To: e.node(ed.to).processor.Name()})
		}
		for _, ed := range n.backEdges {
			dn.Edges = append(dn.Edges, dumpEdge{To: e.node(ed.to).processor.Name(), Backward: true})
		}
		n.statusMu.Unlock()
		doc.Nodes = append(doc.Nodes, dn)
	}

	e.taskQueueMu.Lock()
	doc.QueuedTasks = e.taskQueue.len()
	doc.QueuedQuotaTasks = e.taskQueue.quotaCount()
	e.taskQueueMu.Unlock()

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
