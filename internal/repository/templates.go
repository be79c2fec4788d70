package repository

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

type templateRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewTemplateRepository(pool *pgxpool.Pool, logger *slog.Logger) TemplateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &templateRepository{pool: pool, logger: logger}
}

// fieldSpecRow is the JSONB shape stored in templates.fields.
type fieldSpecRow struct {
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Required bool                `json:"required"`
	Hints    map[string][]string `json:"hints,omitempty"`
	Rule     ruleRow             `json:"rule"`
}

type ruleRow struct {
	Kind    string   `json:"kind"`
	Pattern string   `json:"pattern,omitempty"`
	Min     float64  `json:"min,omitempty"`
	Max     float64  `json:"max,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

func (r *templateRepository) ListByCompound(ctx context.Context, compoundCode string) ([]*entity.Template, error) {
	const q = `
		SELECT id, compound_code, region, version, is_default, fields
		FROM templates WHERE compound_code = $1`
	rows, err := r.pool.Query(ctx, q, compoundCode)
	if err != nil {
		r.logger.Error("failed to list templates", "compound", compoundCode, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Template
	for rows.Next() {
		var (
			id        uuid.UUID
			region    string
			tpl       entity.Template
			fieldsRaw []byte
		)
		if err := rows.Scan(&id, &tpl.CompoundCode, &region, &tpl.Version, &tpl.Default, &fieldsRaw); err != nil {
			return nil, err
		}
		tpl.ID = id
		tpl.Region = constants.Region(region)

		var specs []fieldSpecRow
		if err := json.Unmarshal(fieldsRaw, &specs); err != nil {
			r.logger.Error("malformed template fields", "template_id", id, "error", err)
			return nil, err
		}
		for _, s := range specs {
			tpl.Fields = append(tpl.Fields, entity.FieldSpec{
				Name:     s.Name,
				Type:     entity.FieldType(s.Type),
				Required: s.Required,
				Hints:    s.Hints,
				Rule: entity.ValidationRule{
					Kind:    entity.RuleKind(s.Rule.Kind),
					Pattern: s.Rule.Pattern,
					Min:     s.Rule.Min,
					Max:     s.Rule.Max,
					Allowed: s.Rule.Allowed,
				},
			})
		}
		out = append(out, &tpl)
	}
	return out, rows.Err()
}
