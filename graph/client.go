// Package graph ist die Neo4j-Anbindung: Schreibpfad der Pipeline,
// Leseabfragen der Filter und die Versionshistorie der Metadaten.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"pubmed-graph/config"
)

// Client kapselt Treiber und Datenbanknamen.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	logger   *zap.Logger
}

func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if cfg.Neo4jURI == "" {
		return nil, fmt.Errorf("graph: NEO4J_URI not set")
	}
	auth := neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, "")
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.Neo4jMaxPoolSize
		c.SocketConnectTimeout = cfg.Neo4jTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("graph: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Neo4jTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: cfg.Neo4jDatabase,
		logger:   logger.With(zap.String("client", "neo4j")),
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

const (
	accessRead  = neo4j.AccessModeRead
	accessWrite = neo4j.AccessModeWrite
)

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.Database})
}

// write führt cypher in einer Schreibtransaktion aus und verwirft das Ergebnis.
func (c *Client) write(ctx context.Context, cypher string, params map[string]any) error {
	_, err := c.collect(ctx, accessWrite, cypher, params)
	return err
}

// collect führt cypher aus und liefert alle Datensätze.
// statement ist eine Cypher-Anweisung samt Parametern.
type statement struct {
	cypher string
	params map[string]any
}

// runStatements führt stmts nacheinander in tx aus; der erste Fehler bricht ab
// und lässt den Treiber die Transaktion zurückrollen.
func runStatements(ctx context.Context, tx neo4j.ManagedTransaction, stmts []statement) ([][]*neo4j.Record, error) {
	out := make([][]*neo4j.Record, 0, len(stmts))
	for _, st := range stmts {
		res, err := tx.Run(ctx, st.cypher, st.params)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, recs)
	}
	return out, nil
}

// execute führt stmts in einer gemeinsamen Transaktion aus und liefert die
// Records je Anweisung.
func (c *Client) execute(ctx context.Context, mode neo4j.AccessMode, stmts ...statement) ([][]*neo4j.Record, error) {
	session := c.session(ctx, mode)
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		return runStatements(ctx, tx, stmts)
	}

	var out any
	var err error
	if mode == accessRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	return out.([][]*neo4j.Record), nil
}

func (c *Client) collect(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	out, err := c.execute(ctx, mode, statement{cypher: cypher, params: params})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EnsureSchema legt Eindeutigkeits-Constraints an. Fehler, etwa wegen fehlender
// Rechte, werden nur protokolliert.
func (c *Client) EnsureSchema(ctx context.Context) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		res, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			c.logger.Warn("Schema-Anweisung fehlgeschlagen (weiter)", zap.String("statement", stmt), zap.Error(err))
		}
	}
}

func int64Value(rec *neo4j.Record, key string) (int64, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}
