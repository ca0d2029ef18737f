package question

// NodeBinding binds a query-graph node id to a knowledge-graph node id.
type NodeBinding struct {
	KgID string `json:"kg_id"`
	QgID string `json:"qg_id"`
}

// EdgeBinding binds a query-graph edge id to a knowledge-graph edge id.
type EdgeBinding struct {
	KgID string `json:"kg_id"`
	QgID string `json:"qg_id"`
}

// Answer is a single matched binding set.
type Answer struct {
	NodeBindings []NodeBinding `json:"node_bindings"`
	EdgeBindings []EdgeBinding `json:"edge_bindings"`
}

// KnowledgeGraph holds the full node/edge objects referenced by a set of
// answers as plain lists, each object identified by its knowledge-graph id
// rather than its query-graph id.
type KnowledgeGraph struct {
	Nodes []map[string]interface{} `json:"nodes"`
	Edges []map[string]interface{} `json:"edges"`
}

// Message is the TrAPI question/response envelope: a query graph in,
// answers and a supporting knowledge graph out.
type Message struct {
	QueryGraph     QueryGraph      `json:"query_graph"`
	Results        []Answer        `json:"results,omitempty"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledge_graph,omitempty"`
}
