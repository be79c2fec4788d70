// Package template resolves which field schema applies to a compound and
// region. Templates themselves are owned by an external configuration
// collaborator; this package only reads them.
package template

import (
	"context"
	"log/slog"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/repository"
)

type Resolver struct {
	templates repository.TemplateRepository
	logger    *slog.Logger
}

func NewResolver(templates repository.TemplateRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{templates: templates, logger: logger}
}

// Resolve selects the active template for (compoundCode, region).
//
// Selection rule: exact region match on the highest version wins; if no
// region-specific template exists, fall back to the compound-level default
// on its highest version; otherwise TemplateNotFoundError.
//
// preferredLanguage is advisory only: it picks the locator-hint set inside
// the chosen template (see entity.FieldSpec.HintsFor), never the template.
func (r *Resolver) Resolve(ctx context.Context, compoundCode string, region constants.Region, preferredLanguage string) (*entity.Template, error) {
	candidates, err := r.templates.ListByCompound(ctx, compoundCode)
	if err != nil {
		return nil, err
	}

	var regional, fallback *entity.Template
	for _, tpl := range candidates {
		if tpl.Region == region {
			if regional == nil || tpl.Version > regional.Version {
				regional = tpl
			}
		}
		if tpl.Default {
			if fallback == nil || tpl.Version > fallback.Version {
				fallback = tpl
			}
		}
	}

	chosen := regional
	if chosen == nil {
		chosen = fallback
	}
	if chosen == nil {
		r.logger.Warn("no template found", "compound", compoundCode, "region", region)
		return nil, common.NewTemplateNotFoundError(compoundCode, string(region))
	}

	r.logger.Info("template resolved",
		"compound", compoundCode, "region", region,
		"template_id", chosen.ID, "version", chosen.Version,
		"regional", regional != nil, "preferred_language", preferredLanguage,
	)
	return chosen, nil
}
