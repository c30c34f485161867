// Package neo4jstore implements graph.Store on Neo4j.
//
// Every DAO call opens its own session and runs one managed transaction;
// the session is closed on every path. Driver errors are translated at this
// boundary: ConstraintValidationFailed becomes a Conflict, any other
// Neo.ClientError a Validation error, everything else a Storage error.
package neo4jstore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Config holds the connection settings
type Config struct {
	URI      string
	User     string
	Password string
	Database string
	// Edition is community or enterprise; enterprise adds existence constraints
	Edition string
	// Env gates ResetAll
	Env string
}

// Store is a Neo4j-backed graph store
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	edition  string
	env      string
	logger   *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// New opens a driver and verifies connectivity
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 50
			c.SocketConnectTimeout = 10 * time.Second
		})
	if err != nil {
		return nil, errors.WrapFatal(err, "neo4jstore", "New", "create driver")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.WrapTransient(err, "neo4jstore", "New", "verify connectivity")
	}

	return &Store{
		driver:   driver,
		database: cfg.Database,
		edition:  cfg.Edition,
		env:      cfg.Env,
		logger:   logger.With("component", "neo4jstore"),
	}, nil
}

// People implements graph.Store
func (s *Store) People() graph.PersonDAO { return peopleDAO{s} }

// Structures implements graph.Store
func (s *Store) Structures() graph.StructureDAO { return structureDAO{s} }

// Concepts implements graph.Store
func (s *Store) Concepts() graph.ConceptDAO { return conceptDAO{s} }

// Journals implements graph.Store
func (s *Store) Journals() graph.JournalDAO { return journalDAO{s} }

// SourceRecords implements graph.Store
func (s *Store) SourceRecords() graph.SourceRecordDAO { return recordDAO{s} }

// Global implements graph.Store
func (s *Store) Global() graph.GlobalDAO { return globalDAO{s} }

// Close closes the driver
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// write runs fn in one write transaction and translates its error
func (s *Store) write(ctx context.Context, method string, fn func(tx neo4j.ManagedTransaction) error) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return translate(err, method)
}

// read runs fn in one read transaction and translates its error
func (s *Store) read(ctx context.Context, method string, fn func(tx neo4j.ManagedTransaction) error) error {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return translate(err, method)
}

// translate maps driver errors onto the domain taxonomy. Domain errors
// raised inside a transaction function pass through unchanged.
func translate(err error, method string) error {
	if err == nil {
		return nil
	}
	if errors.IsConflict(err) || errors.IsNotFound(err) || errors.IsValidation(err) ||
		errors.Is(err, errors.ErrReferenceOwnerNotFound) || errors.Is(err, errors.ErrStorage) {
		return err
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case neoErr.Code == constraintViolation:
			return errors.Conflictf("%s", neoErr.Msg)
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError."):
			return errors.Validationf("%s: %s", neoErr.Code, neoErr.Msg)
		}
	}
	return errors.Storage(err, "neo4jstore", method, "run transaction")
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// single returns the first column of the only record, ok=false when the
// query returned no record.
func single(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (any, bool, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, false, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 || len(records[0].Values) == 0 {
		return nil, false, nil
	}
	return records[0].Values[0], true, nil
}

func exists(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (bool, error) {
	v, ok, err := single(ctx, tx, query, params)
	if err != nil || !ok {
		return false, err
	}
	n, _ := v.(int64)
	return n > 0, nil
}
