package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"graphtrack/api/internal/priority"
	"graphtrack/api/internal/util"
)

var tracer = otel.Tracer("graphtrack/store")

const nodeColumns = `id, type, title, description, status, position_json,
	priority_executive, priority_individual, priority_community, priority_computed,
	metadata_json, created_at, updated_at`

const edgeColumns = `id, source_id, target_id, type, weight, strength, metadata_json, created_at`

// GraphStore is the sole owner of persisted nodes and edges. It speaks to
// Postgres or SQLite through database/sql.
type GraphStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewGraphStore(db *sql.DB, dialect Dialect) *GraphStore {
	return &GraphStore{
		db:      db,
		dialect: dialect,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func NewPostgresStore(db *sql.DB) *GraphStore {
	return NewGraphStore(db, DialectPostgres)
}

func NewSQLiteStore(db *sql.DB) *GraphStore {
	return NewGraphStore(db, DialectSQLite)
}

func (s *GraphStore) DB() *sql.DB {
	return s.db
}

func (s *GraphStore) Dialect() Dialect {
	return s.dialect
}

func (s *GraphStore) spanOptions() []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", string(s.dialect))),
	}
}

func (s *GraphStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *GraphStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *GraphStore) CreateNode(ctx context.Context, spec NodeSpec) (node Node, err error) {
	defer func() { observe("create_node", err) }()

	node, err = nodeFromSpec(spec)
	if err != nil {
		return Node{}, err
	}
	node.ID = util.NewID("node")
	node.CreatedAt = s.now()
	node.UpdatedAt = node.CreatedAt

	if err := s.insertNode(ctx, s.db, node); err != nil {
		return Node{}, err
	}
	return node, nil
}

// InsertNodes persists already-sanitized nodes keeping their ids.
func (s *GraphStore) InsertNodes(ctx context.Context, nodes []Node) ([]Node, error) {
	result, err := s.ImportBatch(ctx, nodes, nil)
	if err != nil {
		return nil, err
	}
	return result.Nodes, nil
}

// ImportBatch persists a validated batch atomically. Node ids are kept; edges
// without an id get one. Edge endpoints may live in the batch or the store.
func (s *GraphStore) ImportBatch(ctx context.Context, nodes []Node, edges []Edge) (result ImportResult, err error) {
	defer func() { observe("import_batch", err) }()

	at := s.now()
	seen := make(map[string]struct{}, len(nodes))
	prepared := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		normalized, err := normalizeNode(n, at)
		if err != nil {
			return ImportResult{}, err
		}
		if _, dup := seen[normalized.ID]; dup {
			return ImportResult{}, fmt.Errorf("import node %s: %w", normalized.ID, ErrDuplicateID)
		}
		seen[normalized.ID] = struct{}{}
		prepared = append(prepared, normalized)
	}

	preparedEdges := make([]Edge, 0, len(edges))
	for _, e := range edges {
		normalized, err := normalizeEdge(e, at)
		if err != nil {
			return ImportResult{}, err
		}
		preparedEdges = append(preparedEdges, normalized)
	}

	err = s.withTx(ctx, nil, func(tx *sql.Tx) error {
		for _, n := range prepared {
			if err := s.insertNode(ctx, tx, n); err != nil {
				return err
			}
		}
		for _, e := range preparedEdges {
			if err := s.checkEndpoints(ctx, tx, e.SourceID, e.TargetID); err != nil {
				return err
			}
			if err := s.insertEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Nodes: prepared, Edges: preparedEdges}, nil
}

func (s *GraphStore) insertNode(ctx context.Context, q queryer, n Node) error {
	positionJSON, err := json.Marshal(n.Position)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	metadataJSON, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO nodes (`+nodeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`),
		n.ID, string(n.Type), n.Title, n.Description, string(n.Status), string(positionJSON),
		n.Priority.Executive, n.Priority.Individual, n.Priority.Community, n.Priority.Computed,
		metadataJSON, n.CreatedAt.UnixMicro(), n.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert node %s: %w", n.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *GraphStore) GetNode(ctx context.Context, id string, withLinks bool) (detail NodeDetail, err error) {
	defer func() { observe("get_node", err) }()

	node, err := s.getNode(ctx, s.db, id, false)
	if err != nil {
		return NodeDetail{}, err
	}
	detail.Node = node
	if !withLinks {
		return detail, nil
	}

	order := s.dialect.orderColumn("")
	detail.Dependencies, err = s.linkedIDs(ctx, `
		SELECT source_id FROM edges WHERE target_id=$1 AND type=$2
		ORDER BY created_at ASC, `+order+` ASC
	`, id)
	if err != nil {
		return NodeDetail{}, fmt.Errorf("read dependencies: %w", err)
	}
	detail.Dependents, err = s.linkedIDs(ctx, `
		SELECT target_id FROM edges WHERE source_id=$1 AND type=$2
		ORDER BY created_at ASC, `+order+` ASC
	`, id)
	if err != nil {
		return NodeDetail{}, fmt.Errorf("read dependents: %w", err)
	}
	return detail, nil
}

func (s *GraphStore) linkedIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), id, string(RelDependsOn))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	seen := map[string]struct{}{}
	for rows.Next() {
		var linked string
		if err := rows.Scan(&linked); err != nil {
			return nil, err
		}
		if _, ok := seen[linked]; ok {
			continue
		}
		seen[linked] = struct{}{}
		ids = append(ids, linked)
	}
	return ids, rows.Err()
}

func (s *GraphStore) getNode(ctx context.Context, q queryer, id string, lock bool) (Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id=$1`
	if lock {
		query += s.dialect.lockClause()
	}
	node, err := scanNode(q.QueryRowContext(ctx, s.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Node{}, fmt.Errorf("read node: %w", err)
	}
	return node, nil
}

func (s *GraphStore) UpdateNode(ctx context.Context, id string, patch NodePatch) (node Node, err error) {
	defer func() { observe("update_node", err) }()

	err = s.withTx(ctx, nil, func(tx *sql.Tx) error {
		current, err := s.getNode(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := applyNodePatch(&current, patch); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if current.UpdatedAt.Before(current.CreatedAt) {
			current.UpdatedAt = current.CreatedAt
		}

		positionJSON, err := json.Marshal(current.Position)
		if err != nil {
			return fmt.Errorf("encode position: %w", err)
		}
		metadataJSON, err := encodeMetadata(current.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.Rebind(`
			UPDATE nodes
			SET type=$2, title=$3, description=$4, status=$5, position_json=$6,
				priority_executive=$7, priority_individual=$8, priority_community=$9, priority_computed=$10,
				metadata_json=$11, updated_at=$12
			WHERE id=$1
		`),
			current.ID, string(current.Type), current.Title, current.Description, string(current.Status), string(positionJSON),
			current.Priority.Executive, current.Priority.Individual, current.Priority.Community, current.Priority.Computed,
			metadataJSON, current.UpdatedAt.UnixMicro(),
		)
		if err != nil {
			return fmt.Errorf("update node: %w", err)
		}
		node = current
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	return node, nil
}

// DeleteNode removes the node and every edge touching it in one transaction.
func (s *GraphStore) DeleteNode(ctx context.Context, id string) (removed bool, err error) {
	defer func() { observe("delete_node", err) }()

	err = s.withTx(ctx, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM edges WHERE source_id=$1 OR target_id=$1`), id); err != nil {
			return fmt.Errorf("delete incident edges: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM nodes WHERE id=$1`), id)
		if err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete node rows: %w", err)
		}
		removed = rows > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *GraphStore) CreateEdge(ctx context.Context, spec EdgeSpec) (edge Edge, err error) {
	defer func() { observe("create_edge", err) }()

	edge, err = edgeFromSpec(spec)
	if err != nil {
		return Edge{}, err
	}
	edge.ID = util.NewID("edge")
	edge.CreatedAt = s.now()

	err = s.withTx(ctx, nil, func(tx *sql.Tx) error {
		if err := s.checkEndpoints(ctx, tx, edge.SourceID, edge.TargetID); err != nil {
			return err
		}
		return s.insertEdge(ctx, tx, edge)
	})
	if err != nil {
		return Edge{}, err
	}
	return edge, nil
}

func (s *GraphStore) checkEndpoints(ctx context.Context, q queryer, sourceID, targetID string) error {
	for _, endpoint := range []struct{ role, id string }{{"source", sourceID}, {"target", targetID}} {
		exists, err := s.nodeExists(ctx, q, endpoint.id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s node %q: %w", endpoint.role, endpoint.id, ErrMissingEndpoint)
		}
	}
	return nil
}

func (s *GraphStore) nodeExists(ctx context.Context, q queryer, id string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, s.dialect.Rebind(`SELECT EXISTS(SELECT 1 FROM nodes WHERE id=$1)`), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check node %s: %w", id, err)
	}
	return exists, nil
}

func (s *GraphStore) insertEdge(ctx context.Context, q queryer, e Edge) error {
	metadataJSON, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO edges (`+edgeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`),
		e.ID, e.SourceID, e.TargetID, string(e.Type), e.Weight, e.Strength, metadataJSON, e.CreatedAt.UnixMicro(),
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return fmt.Errorf("insert edge %s: %w", e.ID, ErrMissingEndpoint)
		case isUniqueViolation(err):
			return fmt.Errorf("insert edge %s: %w", e.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

func (s *GraphStore) GetEdge(ctx context.Context, id string) (edge Edge, err error) {
	defer func() { observe("get_edge", err) }()
	return s.getEdge(ctx, s.db, id, false)
}

func (s *GraphStore) getEdge(ctx context.Context, q queryer, id string, lock bool) (Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE id=$1`
	if lock {
		query += s.dialect.lockClause()
	}
	edge, err := scanEdge(q.QueryRowContext(ctx, s.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Edge{}, fmt.Errorf("edge %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Edge{}, fmt.Errorf("read edge: %w", err)
	}
	return edge, nil
}

func (s *GraphStore) UpdateEdge(ctx context.Context, id string, patch EdgePatch) (edge Edge, err error) {
	defer func() { observe("update_edge", err) }()

	err = s.withTx(ctx, nil, func(tx *sql.Tx) error {
		current, err := s.getEdge(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := applyEdgePatch(&current, patch); err != nil {
			return err
		}
		metadataJSON, err := encodeMetadata(current.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.dialect.Rebind(`
			UPDATE edges SET type=$2, weight=$3, strength=$4, metadata_json=$5 WHERE id=$1
		`), current.ID, string(current.Type), current.Weight, current.Strength, metadataJSON)
		if err != nil {
			return fmt.Errorf("update edge: %w", err)
		}
		edge = current
		return nil
	})
	if err != nil {
		return Edge{}, err
	}
	return edge, nil
}

func (s *GraphStore) DeleteEdge(ctx context.Context, id string) (removed bool, err error) {
	defer func() { observe("delete_edge", err) }()

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM edges WHERE id=$1`), id)
	if err != nil {
		return false, fmt.Errorf("delete edge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete edge rows: %w", err)
	}
	return rows > 0, nil
}

func (s *GraphStore) priorityOrder() string {
	return `ORDER BY priority_computed DESC, created_at ASC, ` + s.dialect.orderColumn("") + ` ASC`
}

// ListNodesByType returns nodes of one type, highest computed priority first.
func (s *GraphStore) ListNodesByType(ctx context.Context, nodeType NodeType) (nodes []Node, err error) {
	defer func() { observe("list_nodes_by_type", err) }()

	canonical, ok := ParseNodeType(string(nodeType))
	if !ok {
		return nil, fmt.Errorf("node type %q: %w", nodeType, ErrInvalidSpec)
	}
	return s.listNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE type=$1 `+s.priorityOrder(), string(canonical))
}

// ListNodesAbovePriority returns nodes whose computed priority is at least
// threshold, highest first.
func (s *GraphStore) ListNodesAbovePriority(ctx context.Context, threshold float64) (nodes []Node, err error) {
	defer func() { observe("list_nodes_above_priority", err) }()

	if math.IsNaN(threshold) {
		return nil, fmt.Errorf("priority threshold: %w", ErrInvalidSpec)
	}
	return s.listNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE priority_computed >= $1 `+s.priorityOrder(), threshold)
}

// ListNodesInRange returns nodes with floor <= computed < ceiling, highest
// first. A ceiling above 1 includes the top of the scale.
func (s *GraphStore) ListNodesInRange(ctx context.Context, floor, ceiling float64) (nodes []Node, err error) {
	defer func() { observe("list_nodes_in_range", err) }()
	return s.listNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE priority_computed >= $1 AND priority_computed < $2 `+s.priorityOrder(), floor, ceiling)
}

func (s *GraphStore) listNodes(ctx context.Context, query string, args ...any) ([]Node, error) {
	return s.queryNodes(ctx, s.db, query, args...)
}

func (s *GraphStore) queryNodes(ctx context.Context, q queryer, query string, args ...any) ([]Node, error) {
	rows, err := q.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}

func (s *GraphStore) CountNodes(ctx context.Context) (int, error) {
	return s.count(ctx, "nodes")
}

func (s *GraphStore) CountEdges(ctx context.Context) (int, error) {
	return s.count(ctx, "edges")
}

func (s *GraphStore) count(ctx context.Context, table string) (n int, err error) {
	defer func() { observe("count_"+table, err) }()
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// DependencySnapshot reads node ids and DependsOn links inside one read-only
// transaction so traversals never see a torn write.
func (s *GraphStore) DependencySnapshot(ctx context.Context) (snap DependencySnapshot, err error) {
	ctx, span := tracer.Start(ctx, "store.DependencySnapshot", s.spanOptions()...)
	defer span.End()
	defer func() { observe("dependency_snapshot", err) }()

	err = s.withTx(ctx, s.dialect.snapshotTxOptions(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM nodes ORDER BY `+s.dialect.orderColumn("")+` ASC`)
		if err != nil {
			return fmt.Errorf("read node ids: %w", err)
		}
		snap.NodeIDs = []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan node id: %w", err)
			}
			snap.NodeIDs = append(snap.NodeIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate node ids: %w", err)
		}

		rows, err = tx.QueryContext(ctx, s.dialect.Rebind(`
			SELECT source_id, target_id FROM edges WHERE type=$1
			ORDER BY created_at ASC, `+s.dialect.orderColumn("")+` ASC
		`), string(RelDependsOn))
		if err != nil {
			return fmt.Errorf("read dependency links: %w", err)
		}
		defer rows.Close()
		snap.Links = []Link{}
		for rows.Next() {
			var link Link
			if err := rows.Scan(&link.From, &link.To); err != nil {
				return fmt.Errorf("scan dependency link: %w", err)
			}
			snap.Links = append(snap.Links, link)
		}
		return rows.Err()
	})
	if err != nil {
		return DependencySnapshot{}, err
	}
	span.SetAttributes(
		attribute.Int("graph.nodes", len(snap.NodeIDs)),
		attribute.Int("graph.links", len(snap.Links)),
	)
	return snap, nil
}

// Snapshot reads every node and edge inside one read-only transaction.
func (s *GraphStore) Snapshot(ctx context.Context) (snap GraphSnapshot, err error) {
	ctx, span := tracer.Start(ctx, "store.Snapshot", s.spanOptions()...)
	defer span.End()
	defer func() { observe("snapshot", err) }()

	order := s.dialect.orderColumn("")
	err = s.withTx(ctx, s.dialect.snapshotTxOptions(), func(tx *sql.Tx) error {
		nodes, err := s.queryNodes(ctx, tx, `SELECT `+nodeColumns+` FROM nodes ORDER BY `+order+` ASC`)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT `+edgeColumns+` FROM edges ORDER BY created_at ASC, `+order+` ASC`)
		if err != nil {
			return fmt.Errorf("list edges: %w", err)
		}
		defer rows.Close()
		edges := []Edge{}
		for rows.Next() {
			edge, err := scanEdge(rows)
			if err != nil {
				return fmt.Errorf("scan edge: %w", err)
			}
			edges = append(edges, edge)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate edges: %w", err)
		}
		snap = GraphSnapshot{Nodes: nodes, Edges: edges, TakenAt: s.now()}
		return nil
	})
	if err != nil {
		return GraphSnapshot{}, err
	}
	return snap, nil
}

// SearchNodes matches text case-insensitively against titles and
// descriptions. It backs search when no index is reachable.
func (s *GraphStore) SearchNodes(ctx context.Context, text string, limit int) (nodes []Node, err error) {
	defer func() { observe("search_nodes", err) }()

	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	return s.listNodes(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE LOWER(title) LIKE $1 ESCAPE '\' OR LOWER(description) LIKE $1 ESCAPE '\'
		`+s.priorityOrder()+`
		LIMIT $2
	`, pattern, limit)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func scanNode(row rowScanner) (Node, error) {
	var (
		n                            Node
		nodeType, status             string
		positionJSON                 string
		metadataJSON                 sql.NullString
		createdMicros, updatedMicros int64
	)
	err := row.Scan(
		&n.ID, &nodeType, &n.Title, &n.Description, &status, &positionJSON,
		&n.Priority.Executive, &n.Priority.Individual, &n.Priority.Community, &n.Priority.Computed,
		&metadataJSON, &createdMicros, &updatedMicros,
	)
	if err != nil {
		return Node{}, err
	}
	n.Type = NodeType(nodeType)
	n.Status = NodeStatus(status)
	if positionJSON != "" {
		if err := json.Unmarshal([]byte(positionJSON), &n.Position); err != nil {
			return Node{}, fmt.Errorf("decode position: %w", err)
		}
	}
	if n.Metadata, err = decodeMetadata(metadataJSON); err != nil {
		return Node{}, err
	}
	n.CreatedAt = time.UnixMicro(createdMicros).UTC()
	n.UpdatedAt = time.UnixMicro(updatedMicros).UTC()
	return n, nil
}

func scanEdge(row rowScanner) (Edge, error) {
	var (
		e             Edge
		relType       string
		metadataJSON  sql.NullString
		createdMicros int64
	)
	err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &relType, &e.Weight, &e.Strength, &metadataJSON, &createdMicros)
	if err != nil {
		return Edge{}, err
	}
	e.Type = RelationshipType(relType)
	if e.Metadata, err = decodeMetadata(metadataJSON); err != nil {
		return Edge{}, err
	}
	e.CreatedAt = time.UnixMicro(createdMicros).UTC()
	return e, nil
}

func encodeMetadata(metadata map[string]any) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(metadata) == 0 {
		return nil, nil
	}
	return metadata, nil
}

func nodeFromSpec(spec NodeSpec) (Node, error) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return Node{}, fmt.Errorf("title is required: %w", ErrInvalidSpec)
	}
	nodeType, err := resolveNodeType(spec.Type)
	if err != nil {
		return Node{}, err
	}
	status, err := resolveNodeStatus(spec.Status)
	if err != nil {
		return Node{}, err
	}
	if err := checkPosition(spec.Position); err != nil {
		return Node{}, err
	}

	dims := [3]float64{}
	for i, input := range []struct {
		name  string
		value *float64
	}{{"executive", spec.Executive}, {"individual", spec.Individual}, {"community", spec.Community}} {
		dims[i] = priority.DefaultDimension
		if input.value == nil {
			continue
		}
		if dims[i], err = priorityInput(input.name, *input.value); err != nil {
			return Node{}, err
		}
	}

	return Node{
		Type:        nodeType,
		Title:       title,
		Description: spec.Description,
		Status:      status,
		Position:    spec.Position,
		Priority: Priority{
			Executive:  dims[0],
			Individual: dims[1],
			Community:  dims[2],
			Computed:   priority.Compute(dims[0], dims[1], dims[2]),
		},
		Metadata: emptyToNil(spec.Metadata),
	}, nil
}

func applyNodePatch(n *Node, patch NodePatch) error {
	if patch.Type != nil {
		nodeType, ok := ParseNodeType(string(*patch.Type))
		if !ok {
			return fmt.Errorf("node type %q: %w", *patch.Type, ErrInvalidSpec)
		}
		n.Type = nodeType
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return fmt.Errorf("title is required: %w", ErrInvalidSpec)
		}
		n.Title = title
	}
	if patch.Description != nil {
		n.Description = *patch.Description
	}
	if patch.Status != nil {
		status, ok := ParseNodeStatus(string(*patch.Status))
		if !ok {
			return fmt.Errorf("node status %q: %w", *patch.Status, ErrInvalidSpec)
		}
		n.Status = status
	}
	if patch.Position != nil {
		if err := checkPosition(*patch.Position); err != nil {
			return err
		}
		n.Position = *patch.Position
	}

	touched := false
	for _, input := range []struct {
		name  string
		value *float64
		dest  *float64
	}{
		{"executive", patch.Executive, &n.Priority.Executive},
		{"individual", patch.Individual, &n.Priority.Individual},
		{"community", patch.Community, &n.Priority.Community},
	} {
		if input.value == nil {
			continue
		}
		v, err := priorityInput(input.name, *input.value)
		if err != nil {
			return err
		}
		*input.dest = v
		touched = true
	}
	if touched {
		n.Priority.Computed = priority.Compute(n.Priority.Executive, n.Priority.Individual, n.Priority.Community)
	}

	if patch.Metadata != nil {
		n.Metadata = emptyToNil(patch.Metadata)
	}
	return nil
}

// normalizeNode checks an already-built node before import and fills the
// fields the store owns.
func normalizeNode(n Node, at time.Time) (Node, error) {
	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		return Node{}, fmt.Errorf("node id is required: %w", ErrInvalidSpec)
	}
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return Node{}, fmt.Errorf("node %s title is required: %w", n.ID, ErrInvalidSpec)
	}
	var err error
	if n.Type, err = resolveNodeType(n.Type); err != nil {
		return Node{}, err
	}
	if n.Status, err = resolveNodeStatus(n.Status); err != nil {
		return Node{}, err
	}
	if err := checkPosition(n.Position); err != nil {
		return Node{}, err
	}
	n.Priority.Executive = priority.Clamp(n.Priority.Executive)
	n.Priority.Individual = priority.Clamp(n.Priority.Individual)
	n.Priority.Community = priority.Clamp(n.Priority.Community)
	n.Priority.Computed = priority.Compute(n.Priority.Executive, n.Priority.Individual, n.Priority.Community)
	n.Metadata = emptyToNil(n.Metadata)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = at
	}
	if n.UpdatedAt.IsZero() || n.UpdatedAt.Before(n.CreatedAt) {
		n.UpdatedAt = n.CreatedAt
	}
	n.CreatedAt = n.CreatedAt.UTC().Truncate(time.Microsecond)
	n.UpdatedAt = n.UpdatedAt.UTC().Truncate(time.Microsecond)
	return n, nil
}

func edgeFromSpec(spec EdgeSpec) (Edge, error) {
	edge := Edge{
		SourceID: strings.TrimSpace(spec.SourceID),
		TargetID: strings.TrimSpace(spec.TargetID),
		Type:     spec.Type,
		Weight:   DefaultEdgeWeight,
		Strength: DefaultEdgeStrength,
		Metadata: emptyToNil(spec.Metadata),
	}
	if edge.SourceID == "" {
		return Edge{}, fmt.Errorf("source node is required: %w", ErrMissingEndpoint)
	}
	if edge.TargetID == "" {
		return Edge{}, fmt.Errorf("target node is required: %w", ErrMissingEndpoint)
	}
	relType, err := resolveRelationship(spec.Type)
	if err != nil {
		return Edge{}, err
	}
	edge.Type = relType
	if spec.Weight != nil {
		edge.Weight = *spec.Weight
	}
	if spec.Strength != nil {
		edge.Strength = *spec.Strength
	}
	if err := checkEdgeNumbers(edge.Weight, edge.Strength); err != nil {
		return Edge{}, err
	}
	return edge, nil
}

func applyEdgePatch(e *Edge, patch EdgePatch) error {
	if patch.Type != nil {
		relType, ok := ParseRelationshipType(string(*patch.Type))
		if !ok {
			return fmt.Errorf("relationship type %q: %w", *patch.Type, ErrInvalidSpec)
		}
		e.Type = relType
	}
	weight, strength := e.Weight, e.Strength
	if patch.Weight != nil {
		weight = *patch.Weight
	}
	if patch.Strength != nil {
		strength = *patch.Strength
	}
	if err := checkEdgeNumbers(weight, strength); err != nil {
		return err
	}
	e.Weight, e.Strength = weight, strength
	if patch.Metadata != nil {
		e.Metadata = emptyToNil(patch.Metadata)
	}
	return nil
}

func normalizeEdge(e Edge, at time.Time) (Edge, error) {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		e.ID = util.NewID("edge")
	}
	e.SourceID = strings.TrimSpace(e.SourceID)
	e.TargetID = strings.TrimSpace(e.TargetID)
	if e.SourceID == "" || e.TargetID == "" {
		return Edge{}, fmt.Errorf("edge %s endpoints are required: %w", e.ID, ErrMissingEndpoint)
	}
	var err error
	if e.Type, err = resolveRelationship(e.Type); err != nil {
		return Edge{}, err
	}
	if err := checkEdgeNumbers(e.Weight, e.Strength); err != nil {
		return Edge{}, err
	}
	e.Metadata = emptyToNil(e.Metadata)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = at
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)
	return e, nil
}

func resolveNodeType(value NodeType) (NodeType, error) {
	if strings.TrimSpace(string(value)) == "" {
		return DefaultNodeType, nil
	}
	parsed, ok := ParseNodeType(string(value))
	if !ok {
		return "", fmt.Errorf("node type %q: %w", value, ErrInvalidSpec)
	}
	return parsed, nil
}

func resolveNodeStatus(value NodeStatus) (NodeStatus, error) {
	if strings.TrimSpace(string(value)) == "" {
		return DefaultNodeStatus, nil
	}
	parsed, ok := ParseNodeStatus(string(value))
	if !ok {
		return "", fmt.Errorf("node status %q: %w", value, ErrInvalidSpec)
	}
	return parsed, nil
}

func resolveRelationship(value RelationshipType) (RelationshipType, error) {
	if strings.TrimSpace(string(value)) == "" {
		return DefaultRelationship, nil
	}
	parsed, ok := ParseRelationshipType(string(value))
	if !ok {
		return "", fmt.Errorf("relationship type %q: %w", value, ErrInvalidSpec)
	}
	return parsed, nil
}

func priorityInput(name string, v float64) (float64, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("%s priority must be finite: %w", name, ErrInvalidSpec)
	}
	return priority.Clamp(v), nil
}

func checkPosition(p Position) error {
	for name, v := range p.Coordinates() {
		if !isFinite(v) {
			return fmt.Errorf("position %s must be finite: %w", name, ErrInvalidSpec)
		}
	}
	return nil
}

func checkEdgeNumbers(weight, strength float64) error {
	if !isFinite(weight) || weight < 0 {
		return fmt.Errorf("weight must be a non-negative number: %w", ErrInvalidSpec)
	}
	if !isFinite(strength) || strength < 0 || strength > 1 {
		return fmt.Errorf("strength must be within [0,1]: %w", ErrInvalidSpec)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func emptyToNil(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}
