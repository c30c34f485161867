// Package model defines the entities reconciled into the knowledge graph.
//
// Models are plain values decoded from inbound messages or HTTP bodies.
// Validate checks them once at the boundary; afterwards services only derive
// new values from them (WithUID, Normalized) and never mutate their input.
//
// Every entity reports its Kind, a closed set:
//
//	switch e.Kind() {
//	case model.KindPerson:
//	case model.KindResearchStructure:
//	}
//
// Agents (people and research structures) additionally expose their
// identifier list, from which identifier.Service derives the uid.
package model
