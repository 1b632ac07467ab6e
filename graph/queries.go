package graph

var schemaStatements = []string{
	`CREATE CONSTRAINT article_pmid IF NOT EXISTS FOR (n:Article) REQUIRE n.pmid IS UNIQUE`,
	`CREATE CONSTRAINT journal_key IF NOT EXISTS FOR (n:Journal) REQUIRE n.key IS UNIQUE`,
	`CREATE CONSTRAINT journal_id IF NOT EXISTS FOR (n:Journal) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT author_name IF NOT EXISTS FOR (n:Author) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT author_id IF NOT EXISTS FOR (n:Author) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT affiliation_name IF NOT EXISTS FOR (n:Affiliation) REQUIRE n.name IS UNIQUE`,
	`CREATE CONSTRAINT affiliation_id IF NOT EXISTS FOR (n:Affiliation) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT mesh_id IF NOT EXISTS FOR (n:MeshHeading) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT article_author_id IF NOT EXISTS FOR (n:ArticleAuthor) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT db_metadata_version IF NOT EXISTS FOR (n:DBMetadata) REQUIRE n.version IS UNIQUE`,
	`CREATE INDEX article_date IF NOT EXISTS FOR (n:Article) ON (n.date)`,
}

const (
	UpsertJournalsQuery = `
UNWIND $rows AS r
MERGE (j:Journal {key: r.key})
ON CREATE SET j.id = r.id, j.title = r.title
RETURN j.key AS key, j.id AS id`

	UpsertAuthorsQuery = `
UNWIND $rows AS r
MERGE (a:Author {name: r.key})
ON CREATE SET a.id = r.id, a.is_collective = r.is_collective
RETURN a.name AS key, a.id AS id`

	UpsertAffiliationsQuery = `
UNWIND $rows AS r
MERGE (f:Affiliation {name: r.key})
ON CREATE SET f.id = r.id
RETURN f.name AS key, f.id AS id`

	// DetachArticleEdgesQuery entfernt Journal-, MeSH- und Zitationskanten vorhandener Artikel.
	DetachArticleEdgesQuery = `
UNWIND $pmids AS pmid
MATCH (art:Article {pmid: pmid})-[e:PUBLISHED_IN|CATEGORISED_BY|CITES]->()
DELETE e`

	MarkRelationsQuery = `
UNWIND $pmids AS pmid
MATCH (art:Article {pmid: pmid})-[h:HAS_AUTHOR]->(rel:ArticleAuthor)
SET rel.orphaned = true
DELETE h
RETURN rel.id AS id`

	InsertArticlesQuery = `
UNWIND $rows AS r
MERGE (art:Article {pmid: r.pmid})
SET art.title = r.title,
    art.date = CASE WHEN r.date = '' THEN null ELSE date(r.date) END
WITH art, r
CALL {
  WITH art, r
  MATCH (j:Journal {id: r.journal_id})
  MERGE (art)-[:PUBLISHED_IN]->(j)
}
CALL {
  WITH art, r
  UNWIND r.mesh_ids AS mid
  MATCH (m:MeshHeading {id: mid})
  MERGE (art)-[:CATEGORISED_BY]->(m)
}
CALL {
  WITH art, r
  UNWIND r.relations AS rr
  CREATE (rel:ArticleAuthor {id: rr.id, position: rr.position, is_first: rr.is_first, is_last: rr.is_last})
  CREATE (art)-[:HAS_AUTHOR]->(rel)
}`

	InsertCitationsQuery = `
UNWIND $rows AS r
MATCH (a:Article {pmid: r.from})
MATCH (b:Article {pmid: r.to})
MERGE (a)-[:CITES]->(b)`

	ConnectAuthorsQuery = `
UNWIND $rows AS r
MATCH (rel:ArticleAuthor {id: r.from})
MATCH (a:Author {id: r.to})
MERGE (rel)-[:AUTHORED_BY]->(a)`

	ConnectAffiliationsQuery = `
UNWIND $rows AS r
MATCH (rel:ArticleAuthor {id: r.from})
MATCH (f:Affiliation {id: r.to})
MERGE (rel)-[:AFFILIATED_WITH]->(f)`

	DeleteRelationsQuery = `
UNWIND $ids AS id
MATCH (rel:ArticleAuthor {id: id})
DETACH DELETE rel`

	DeleteOrphanAuthorsQuery = `
MATCH (a:Author)
WHERE NOT EXISTS { (a)<-[:AUTHORED_BY]-(:ArticleAuthor) }
DETACH DELETE a
RETURN count(a) AS deleted`

	DeleteArticlesQuery = `
UNWIND $pmids AS pmid
MATCH (art:Article {pmid: pmid})
WITH collect(art) AS arts
CALL {
  WITH arts
  UNWIND arts AS art
  MATCH (art)-[:HAS_AUTHOR]->(rel:ArticleAuthor)
  DETACH DELETE rel
}
FOREACH (art IN arts | DETACH DELETE art)
RETURN size(arts) AS deleted`

	MeshIDsQuery = `
MATCH (m:MeshHeading)
RETURN m.id AS id`

	UpsertMeshQuery = `
UNWIND $rows AS r
MERGE (m:MeshHeading {id: r.id})
SET m.ui = r.ui, m.name = r.name, m.tree_numbers = r.tree_numbers`

	// MaxIDQuery liefert die höchste vergebene ID aller von der Sequenz nummerierten Knoten.
	MaxIDQuery = `
CALL {
  MATCH (n:Journal) RETURN max(n.id) AS id
  UNION ALL
  MATCH (n:Author) RETURN max(n.id) AS id
  UNION ALL
  MATCH (n:Affiliation) RETURN max(n.id) AS id
  UNION ALL
  MATCH (n:ArticleAuthor) RETURN max(n.id) AS id
}
RETURN coalesce(max(id), 0) AS last`

	LatestMetadataQuery = `
MATCH (m:DBMetadata)
RETURN m {.*} AS m
ORDER BY m.version DESC
LIMIT 1`

	PushMetadataQuery = `
OPTIONAL MATCH (prev:DBMetadata)
WITH prev ORDER BY prev.version DESC LIMIT 1
CREATE (m:DBMetadata {
  version: coalesce(prev.version, 0) + 1,
  run_id: $run_id,
  status: $status,
  mesh_file: $mesh_file,
  mesh_hash: $mesh_hash,
  mesh_year: $mesh_year,
  created_at: $created_at,
  files_json: $files_json,
  pending_deletes: $pending_deletes
})
FOREACH (_ IN CASE WHEN prev IS NULL THEN [] ELSE [1] END | CREATE (m)-[:PREVIOUS_VERSION]->(prev))
RETURN m.version AS version`

	MetadataHistoryQuery = `
MATCH (m:DBMetadata)
RETURN m {.*} AS m
ORDER BY m.version`
)
