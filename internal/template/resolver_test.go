package template

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/repository"
)

func tpl(compound string, region constants.Region, version int, def bool) *entity.Template {
	return &entity.Template{
		ID:           uuid.New(),
		CompoundCode: compound,
		Region:       region,
		Version:      version,
		Default:      def,
		Fields:       []entity.FieldSpec{{Name: "lot_number", Type: entity.FieldTypeText, Required: true}},
	}
}

func TestResolve_RegionalHighestVersionWins(t *testing.T) {
	v1 := tpl("ASP-100", constants.RegionEU, 1, false)
	v2 := tpl("ASP-100", constants.RegionEU, 2, false)
	def := tpl("ASP-100", "", 9, true)
	r := NewResolver(repository.NewMemoryTemplateRepository(v1, v2, def), nil)

	chosen, err := r.Resolve(context.Background(), "ASP-100", constants.RegionEU, "")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, chosen.ID)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	def1 := tpl("ASP-100", "", 1, true)
	def3 := tpl("ASP-100", "", 3, true)
	cn := tpl("ASP-100", constants.RegionCN, 5, false)
	r := NewResolver(repository.NewMemoryTemplateRepository(def1, def3, cn), nil)

	chosen, err := r.Resolve(context.Background(), "ASP-100", constants.RegionUS, "")
	require.NoError(t, err)
	assert.Equal(t, def3.ID, chosen.ID)
}

func TestResolve_NoTemplate(t *testing.T) {
	r := NewResolver(repository.NewMemoryTemplateRepository(), nil)

	_, err := r.Resolve(context.Background(), "UNKNOWN", constants.RegionEU, "")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindTemplateNotFound))
}

func TestResolve_LanguageNeverChangesTheTemplate(t *testing.T) {
	eu := tpl("ASP-100", constants.RegionEU, 1, false)
	r := NewResolver(repository.NewMemoryTemplateRepository(eu), nil)

	for _, lang := range []string{"", "en", "zh"} {
		chosen, err := r.Resolve(context.Background(), "ASP-100", constants.RegionEU, lang)
		require.NoError(t, err)
		assert.Equal(t, eu.ID, chosen.ID)
	}
}
