package neo4jstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
)

const editionEnterprise = "enterprise"

var uniqueConstraints = []string{
	`CREATE CONSTRAINT person_uid IF NOT EXISTS FOR (p:Person) REQUIRE p.uid IS UNIQUE`,
	`CREATE CONSTRAINT research_structure_uid IF NOT EXISTS FOR (s:ResearchStructure) REQUIRE s.uid IS UNIQUE`,
	`CREATE CONSTRAINT agent_identifier IF NOT EXISTS FOR (i:AgentIdentifier) REQUIRE (i.type, i.value) IS UNIQUE`,
	`CREATE CONSTRAINT concept_uri IF NOT EXISTS FOR (c:Concept) REQUIRE c.uri IS UNIQUE`,
	`CREATE CONSTRAINT source_record_uid IF NOT EXISTS FOR (r:SourceRecord) REQUIRE r.uid IS UNIQUE`,
	`CREATE CONSTRAINT source_journal_uid IF NOT EXISTS FOR (j:SourceJournal) REQUIRE j.uid IS UNIQUE`,
	`CREATE CONSTRAINT source_issue_uid IF NOT EXISTS FOR (i:SourceIssue) REQUIRE i.uid IS UNIQUE`,
	`CREATE CONSTRAINT journal_identifier IF NOT EXISTS FOR (i:JournalIdentifier) REQUIRE (i.type, i.value) IS UNIQUE`,
	`CREATE CONSTRAINT publication_identifier IF NOT EXISTS FOR (i:PublicationIdentifier) REQUIRE (i.type, i.value) IS UNIQUE`,
	`CREATE CONSTRAINT document_type_uri IF NOT EXISTS FOR (d:DocumentType) REQUIRE d.uri IS UNIQUE`,
}

// property existence constraints are an enterprise feature
var existenceConstraints = []string{
	`CREATE CONSTRAINT person_uid_exists IF NOT EXISTS FOR (p:Person) REQUIRE p.uid IS NOT NULL`,
	`CREATE CONSTRAINT research_structure_uid_exists IF NOT EXISTS FOR (s:ResearchStructure) REQUIRE s.uid IS NOT NULL`,
	`CREATE CONSTRAINT literal_value_exists IF NOT EXISTS FOR (l:Literal) REQUIRE l.value IS NOT NULL`,
}

var indexes = []string{
	`CREATE INDEX literal_value IF NOT EXISTS FOR (l:Literal) ON (l.value)`,
}

type globalDAO struct{ s *Store }

// Setup creates constraints and indexes. Schema statements cannot share a
// transaction with each other, so each runs on its own.
func (g globalDAO) Setup(ctx context.Context) error {
	statements := append([]string(nil), uniqueConstraints...)
	if g.s.edition == editionEnterprise {
		statements = append(statements, existenceConstraints...)
	}
	statements = append(statements, indexes...)

	for _, stmt := range statements {
		err := g.s.write(ctx, "Setup", func(tx neo4j.ManagedTransaction) error {
			return run(ctx, tx, stmt, nil)
		})
		if err != nil {
			return err
		}
	}
	g.s.logger.Info("Graph constraints ready", "statements", len(statements), "edition", g.s.edition)
	return nil
}

func (g globalDAO) ResetAll(ctx context.Context) error {
	if !graph.ResetAllowed(g.s.env) {
		return errors.WrapFatal(graph.ErrResetRefused, "neo4jstore", "ResetAll", fmt.Sprintf("reset %s graph", g.s.env))
	}
	return g.s.write(ctx, "ResetAll", func(tx neo4j.ManagedTransaction) error {
		return run(ctx, tx, `MATCH (n) DETACH DELETE n`, nil)
	})
}

func (g globalDAO) CountLiterals(ctx context.Context, value string) (int, error) {
	var count int
	err := g.s.read(ctx, "CountLiterals", func(tx neo4j.ManagedTransaction) error {
		v, _, err := single(ctx, tx, `MATCH (l:Literal {value: $value}) RETURN count(l)`, map[string]any{"value": value})
		if err != nil {
			return err
		}
		n, _ := v.(int64)
		count = int(n)
		return nil
	})
	return count, err
}

func (g globalDAO) Ping(ctx context.Context) error {
	if err := g.s.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Storage(err, "neo4jstore", "Ping", "verify connectivity")
	}
	return nil
}
