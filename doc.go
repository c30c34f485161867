// Package ikg is the institutional knowledge graph of the CRISalid platform.
//
// The service consumes people, research structure and reference events from
// the message broker, reconciles them into a property graph and republishes
// what downstream harvesters need to know. A small HTTP API exposes the same
// reconciliation to operators.
//
// # Architecture
//
//	┌──────────────────────────────┐
//	│  JetStream consumers          │  consumer/, natsclient/
//	│  (one worker pool per topic)  │
//	└──────────────────────────────┘
//	           ↓ decoded envelopes
//	┌──────────────────────────────┐
//	│  Message processors           │  processor/{people,structures,references}
//	└──────────────────────────────┘
//	           ↓ create / update
//	┌──────────────────────────────┐
//	│  Reconciliation services      │  reconcile/, identifier/
//	└──────────────────────────────┘
//	           ↓ persist          ↘ signals (events/)
//	┌──────────────────┐   ┌─────────────────────────────┐
//	│  graph.Store      │   │  publisher/  search/         │
//	│  neo4j or memory  │   │  retrieval tasks, ES index   │
//	└──────────────────┘   └─────────────────────────────┘
//
// The binary lives in cmd/ikg and offers the serve, setup-graph, reset-graph
// and version commands.
package ikg
