package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kilnworks/kiln/internal/definition"
)

const uniqueViolation = "23505"

// Summary is the list-row shape for stored definitions.
type Summary struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	Description       string    `json:"description"`
	Icon              string    `json:"icon,omitempty"`
	ToolsCount        int       `json:"tools_count"`
	CapabilitiesCount int       `json:"capabilities_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SaveDefinition atomically creates the agent row, its tools, and its
// capability links. A definition whose name already exists fails with
// ErrDuplicate; nothing is persisted in that case.
func (s *Store) SaveDefinition(ctx context.Context, tpl definition.Template) (definition.Definition, []definition.ToolSpec, []definition.Capability, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return definition.Definition{}, nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	def := tpl.Agent
	metadata, err := json.Marshal(def.Metadata)
	if err != nil {
		return definition.Definition{}, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now()
	err = tx.QueryRow(ctx, `
		INSERT INTO agents (name, type, description, icon, prompt, metadata, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
		RETURNING id`,
		def.Name, string(def.Type), def.Description, def.Icon, def.Prompt, metadata, now,
	).Scan(&def.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return definition.Definition{}, nil, nil, fmt.Errorf("agent %q: %w", def.Name, ErrDuplicate)
		}
		return definition.Definition{}, nil, nil, fmt.Errorf("insert agent %s: %w", def.Name, err)
	}
	def.CreatedAt = now
	def.UpdatedAt = now

	tools := make([]definition.ToolSpec, 0, len(tpl.Tools))
	for _, t := range tpl.Tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			return definition.Definition{}, nil, nil, fmt.Errorf("marshal parameters for %s: %w", t.Name, err)
		}
		returns, err := json.Marshal(t.Returns)
		if err != nil {
			return definition.Definition{}, nil, nil, fmt.Errorf("marshal returns for %s: %w", t.Name, err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO tools (agent_id, name, description, parameters, returns, implementation)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			def.ID, t.Name, t.Description, params, returns, t.Implementation,
		).Scan(&t.ID)
		if err != nil {
			return definition.Definition{}, nil, nil, fmt.Errorf("insert tool %s: %w", t.Name, err)
		}
		tools = append(tools, t)
	}

	caps := make([]definition.Capability, 0, len(def.Capabilities))
	for pos, name := range def.Capabilities {
		var c definition.Capability
		c.Name = name
		err = tx.QueryRow(ctx, `
			INSERT INTO capabilities (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name,
		).Scan(&c.ID)
		if err != nil {
			return definition.Definition{}, nil, nil, fmt.Errorf("upsert capability %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO agent_capabilities (agent_id, capability_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			def.ID, c.ID, pos,
		); err != nil {
			return definition.Definition{}, nil, nil, fmt.Errorf("link capability %s: %w", name, err)
		}
		caps = append(caps, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return definition.Definition{}, nil, nil, fmt.Errorf("commit: %w", err)
	}
	return def, tools, caps, nil
}

// GetDefinition retrieves a definition by id, including its ordered
// capability names and relationship metadata.
func (s *Store) GetDefinition(ctx context.Context, id int64) (definition.Definition, error) {
	var def definition.Definition
	var metadata []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, name, type, description, COALESCE(icon,''), COALESCE(prompt,''), metadata, created_at, updated_at
		FROM agents WHERE id = $1 AND active`, id,
	).Scan(&def.ID, &def.Name, &def.Type, &def.Description, &def.Icon, &def.Prompt, &metadata, &def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return definition.Definition{}, fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return definition.Definition{}, fmt.Errorf("get agent %d: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &def.Metadata); err != nil {
			return definition.Definition{}, fmt.Errorf("unmarshal metadata for %d: %w", id, err)
		}
	}

	caps, err := s.CapabilitiesForAgent(ctx, id)
	if err != nil {
		return definition.Definition{}, err
	}
	def.Capabilities = make([]string, 0, len(caps))
	for _, c := range caps {
		def.Capabilities = append(def.Capabilities, c.Name)
	}
	return def, nil
}

// GetTemplate assembles the full template document for a stored definition.
func (s *Store) GetTemplate(ctx context.Context, id int64) (definition.Template, error) {
	def, err := s.GetDefinition(ctx, id)
	if err != nil {
		return definition.Template{}, err
	}
	tools, err := s.ToolsForAgent(ctx, id)
	if err != nil {
		return definition.Template{}, err
	}
	return definition.Template{Agent: def, Tools: tools}, nil
}

// ListDefinitions returns summary rows for all active agents.
func (s *Store) ListDefinitions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.name, a.type, a.description, COALESCE(a.icon,''),
		       (SELECT COUNT(*) FROM tools t WHERE t.agent_id = a.id),
		       (SELECT COUNT(*) FROM agent_capabilities ac WHERE ac.agent_id = a.id),
		       a.created_at, a.updated_at
		FROM agents a WHERE a.active
		ORDER BY a.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var row Summary
		if err := rows.Scan(&row.ID, &row.Name, &row.Type, &row.Description, &row.Icon,
			&row.ToolsCount, &row.CapabilitiesCount, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteDefinition removes an agent. A soft delete flags the row inactive and
// retains it; a hard delete removes the row and cascades to owned tools and
// capability links.
func (s *Store) DeleteDefinition(ctx context.Context, id int64, hard bool) error {
	var tag pgconn.CommandTag
	var err error
	if hard {
		tag, err = s.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	} else {
		tag, err = s.db.Exec(ctx,
			`UPDATE agents SET active = false, updated_at = NOW() WHERE id = $1 AND active`, id)
	}
	if err != nil {
		return fmt.Errorf("delete agent %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}
	return nil
}

// ToolsForAgent returns the tools owned by an agent, in insertion order.
func (s *Store) ToolsForAgent(ctx context.Context, id int64) ([]definition.ToolSpec, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, parameters, returns, implementation
		FROM tools WHERE agent_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("tools for agent %d: %w", id, err)
	}
	defer rows.Close()

	var tools []definition.ToolSpec
	for rows.Next() {
		var t definition.ToolSpec
		var params, returns []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &params, &returns, &t.Implementation); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &t.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshal parameters for %s: %w", t.Name, err)
			}
		}
		if len(returns) > 0 {
			if err := json.Unmarshal(returns, &t.Returns); err != nil {
				return nil, fmt.Errorf("unmarshal returns for %s: %w", t.Name, err)
			}
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// CapabilitiesForAgent returns an agent's capabilities in declared order.
func (s *Store) CapabilitiesForAgent(ctx context.Context, id int64) ([]definition.Capability, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, COALESCE(c.description,'')
		FROM capabilities c
		JOIN agent_capabilities ac ON ac.capability_id = c.id
		WHERE ac.agent_id = $1
		ORDER BY ac.position`, id)
	if err != nil {
		return nil, fmt.Errorf("capabilities for agent %d: %w", id, err)
	}
	defer rows.Close()

	var caps []definition.Capability
	for rows.Next() {
		var c definition.Capability
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}

// Relationships extracts supervisor/sub-agent links from the stored metadata.
// Absent metadata yields {supervisor: null, subAgents: []}, never an error.
func (s *Store) Relationships(ctx context.Context, id int64) (definition.Relationships, error) {
	var metadata []byte
	err := s.db.QueryRow(ctx,
		`SELECT metadata FROM agents WHERE id = $1 AND active`, id,
	).Scan(&metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return definition.Relationships{}, fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return definition.Relationships{}, fmt.Errorf("relationships for agent %d: %w", id, err)
	}

	rel := definition.Relationships{SubAgents: []string{}}
	if len(metadata) > 0 {
		var md definition.Metadata
		if jsonErr := json.Unmarshal(metadata, &md); jsonErr == nil {
			if md.Supervisor != "" {
				rel.Supervisor = &md.Supervisor
			}
			if len(md.SubAgents) > 0 {
				rel.SubAgents = md.SubAgents
			}
		}
	}
	return rel, nil
}
