// Package neo4j mirrors extracted link facts into a graph store so
// cross-document relationship queries (shared domains, citation webs)
// stay out of the relational schema. The mirror is derived data and can
// be rebuilt from the links table at any time.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type LinkGraph struct {
	driver neo4j.DriverWithContext
}

func NewLinkGraph(ctx context.Context, uri, user, password string) (*LinkGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &LinkGraph{driver: driver}, nil
}

func (g *LinkGraph) MirrorLinks(ctx context.Context, doc *domain.Document, links []domain.Link) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
MERGE (d:Document {id: $id})
SET d.path = $path, d.filename = $filename
WITH d
OPTIONAL MATCH (d)-[r:REFERENCES]->()
DELETE r
`, map[string]any{
			"id":       doc.ID,
			"path":     doc.Path,
			"filename": doc.Filename,
		}); err != nil {
			return nil, err
		}
		for _, link := range links {
			if _, err := tx.Run(ctx, `
MATCH (d:Document {id: $id})
MERGE (t:Resource {url: $url})
SET t.type = $type, t.domain = $domain
MERGE (d)-[:REFERENCES {text: $text}]->(t)
`, map[string]any{
				"id":     doc.ID,
				"url":    link.URL,
				"type":   string(link.Type),
				"domain": link.Domain,
				"text":   link.Text,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("mirror links: %w", err)
	}
	return nil
}

func (g *LinkGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
