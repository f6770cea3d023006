package extract

import (
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/textnorm"
)

// categoryRule maps a category label, as printed above a "Cupos" column, to
// the field code the metric is stored under.
type categoryRule struct {
	Category string
	Field    string
}

// categoryRules is matched in order and the first hit wins. A label is
// compared after normalization and matches when it contains the rule's
// normalized category, so any rule whose category is contained in another
// rule's category must come after it. Keep subtotals and totals ahead of
// the rows they summarize.
var categoryRules = []categoryRule{
	// Tecnólogos
	{"SubTotal Tecnólogos", "M_SUBT_TEC"},
	{"Tecnólogos Regular - Presencial", "M_TEC_REG_PRE"},
	{"Tecnólogos Regular - Virtual", "M_TEC_REG_VIR"},
	{"Tecnólogos Regular - A Distancia", "M_TEC_REG_DIS"},
	{"Tecnólogos CampeSENA", "M_TEC_CAMPESENA"},
	{"Tecnólogos Full Popular", "M_TEC_FULL_POP"},
	{"Total Educación Superior", "M_TOT_EDU_SUPERIOR"},
	{"Educación Superior", "M_EDU_SUPERIOR"},

	// Técnico laboral and lower levels
	{"SubTotal Técnico Laboral", "M_SUBT_TCO"},
	{"Técnico Laboral Regular - Presencial", "M_TCO_REG_PRE"},
	{"Técnico Laboral Regular - Virtual", "M_TCO_REG_VIR"},
	{"Técnico Laboral CampeSENA", "M_TCO_CAMPESENA"},
	{"Técnico Laboral Full Popular", "M_TCO_FULL_POP"},
	{"Técnico Laboral Articulación con la Media", "M_TCO_ART_MEDIA"},
	{"Operarios Regular", "M_OPE_REG"},
	{"Auxiliares Regular", "M_AUX_REG"},
	{"Profundización Técnica", "M_PROF_TEC"},
	{"Total Formación Titulada", "M_TOT_TITULADA"},

	// Complementaria
	{"Total Formación Complementaria", "M_TOT_COMPLEMENTARIA"},
	{"Complementaria - Virtual", "M_COMP_VIR"},
	{"Complementaria - Presencial", "M_COMP_PRE"},
	{"Complementaria - Bilingüismo", "M_COMP_BIL"},
	{"Complementaria CampeSENA", "M_COMP_CAMPESENA"},
	{"Complementaria Full Popular", "M_COMP_FULL_POP"},

	{"Total Formación Profesional Integral", "M_TOT_FPI"},
}

type compiledRule struct {
	key   string
	field string
}

var compiledRules = compileRules(categoryRules)

func compileRules(rules []categoryRule) []compiledRule {
	out := make([]compiledRule, len(rules))
	for i, r := range rules {
		out[i] = compiledRule{key: textnorm.Normalize(r.Category), field: r.Field}
	}
	return out
}

// ResolveField returns the field code for a category label. Labels matching
// no known category get "M_" followed by their slug, and ok is false.
func ResolveField(category string) (field string, ok bool) {
	norm := textnorm.Normalize(category)
	for _, r := range compiledRules {
		if strings.Contains(norm, r.key) {
			return r.field, true
		}
	}
	return "M_" + textnorm.Slug(category), false
}
