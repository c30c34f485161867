// Package reconcile decides, for every incoming entity, whether it is new,
// an update of a persisted entity or a duplicate, and persists the outcome.
//
// # Agents
//
// People and research structures get their uid from the identifier service
// when the incoming value has none. Create fails with a Conflict when the
// uid exists and Update with a NotFound when it does not. The combined
// operations fall back exactly once:
//
//	CreateOrUpdate: create, then update on Conflict
//	UpdateOrCreate: update, then create on NotFound
//
// so two workers racing on the same new uid both succeed and converge on
// one node. An error from the fallback is returned as is.
//
// # Sources
//
// Concepts are merged per language. Journals are existence-gated by uid.
// A source record requires its owner person to exist, while subject and
// journal reconciliation is best effort: a failing subject or journal is
// logged and dropped from the record.
//
// # Signals
//
// Successful writes emit entity-created, entity-identifiers-updated (only
// when the identifier set changed) and source-record-created through the
// injected events.Emitter, after the transaction committed.
package reconcile
