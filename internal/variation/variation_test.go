package variation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/counselling-resolver/internal/tables"
)

func newGen() *Generator {
	return NewGenerator(tables.Default())
}

func TestOf_IdentityFirst(t *testing.T) {
	forms := newGen().Of("PGIMER CHANDIGARH")
	assert.Equal(t, "PGIMER CHANDIGARH", forms[0])
}

func TestOf_CommaHead(t *testing.T) {
	forms := newGen().Of("KASTURBA MEDICAL COLLEGE, MANIPAL, KARNATAKA")
	assert.Contains(t, forms, "KASTURBA MEDICAL COLLEGE")
	assert.Contains(t, forms, "KASTURBA MEDICAL COL")
}

func TestOf_AbbreviationPairs(t *testing.T) {
	g := newGen()

	forms := g.Of("NATIONAL INSTITUTE OF MENTAL HEALTH AND NEURO SCIENCES")
	assert.Contains(t, forms, "NATIONAL INST OF MENTAL HEALTH AND NEURO SCIENCES")
	assert.Contains(t, forms, "NATIONAL INSTT OF MENTAL HEALTH AND NEURO SCIENCES")

	forms = g.Of("MANIPAL UNIV")
	assert.Contains(t, forms, "MANIPAL UNIVERSITY")

	forms = g.Of("DR. RML HOSPITAL")
	assert.Contains(t, forms, "DR RML HOSPITAL")
	assert.Contains(t, forms, "DR RML HOSP")
	assert.NotContains(t, forms, "DR.. RML HOSPITAL")

	forms = g.Of("DR RML HOSPITAL")
	assert.Contains(t, forms, "DR. RML HOSPITAL")
}

func TestOf_TrailingPunctuationKept(t *testing.T) {
	forms := newGen().Of("GOVT. MEDICAL COLLEGE")
	assert.Contains(t, forms, "GOVERNMENT. MEDICAL COLLEGE")
}

func TestOf_FullyContracted(t *testing.T) {
	forms := newGen().Of("GOVERNMENT MEDICAL COLLEGE AND HOSPITAL")
	assert.Contains(t, forms, "GOVT MEDICAL COL AND HOSP")
}

func TestOf_Initials(t *testing.T) {
	forms := newGen().Of("ALL INDIA INSTITUTE OF MEDICAL SCIENCES")
	assert.Contains(t, forms, "A.I.I.M.S.")
	assert.Contains(t, forms, "A I I M S")
	assert.Contains(t, forms, "AIIMS")
}

func TestOf_NoInitialsForLongNames(t *testing.T) {
	forms := newGen().Of("SARDAR PATEL MEDICAL COLLEGE AND ASSOCIATED GROUP OF HOSPITALS BIKANER")
	for _, f := range forms {
		assert.NotEqual(t, "S P M C A G H B", f)
	}
	assert.Nil(t, newGen().Initials("SARDAR PATEL MEDICAL COLLEGE ASSOCIATED GROUP HOSPITALS"))
}

func TestOf_NoInitialsForSingleToken(t *testing.T) {
	assert.Nil(t, newGen().Initials("PGIMER"))
	assert.Equal(t, []string{"PGIMER"}, newGen().Of("PGIMER"))
}

func TestOf_Deduplicated(t *testing.T) {
	forms := newGen().Of("AIIMS, AIIMS")
	seen := map[string]bool{}
	for _, f := range forms {
		assert.False(t, seen[f], "duplicate %q", f)
		seen[f] = true
	}
}

func TestOf_Empty(t *testing.T) {
	assert.Empty(t, newGen().Of(""))
	assert.Empty(t, newGen().QueryForms("  "))
}

func TestQueryForms_NoInitials(t *testing.T) {
	forms := newGen().QueryForms("ALL INDIA INSTITUTE OF MEDICAL SCIENCES")
	assert.NotContains(t, forms, "AIIMS")
	assert.Contains(t, forms, "ALL INDIA INST OF MEDICAL SCIENCES")
}

func TestQueryForms_CommaReduction(t *testing.T) {
	assert.Equal(t, []string{"PGIMER,,", "PGIMER"}, newGen().QueryForms("PGIMER,,"))
}

func TestCommaHeadTail(t *testing.T) {
	assert.Equal(t, "AIIMS", CommaHead("AIIMS, NEW DELHI"))
	assert.Equal(t, "NEW DELHI", CommaTail("AIIMS, NEW DELHI"))
	assert.Equal(t, "PGIMER", CommaHead(",,PGIMER,,"))
	assert.Equal(t, "", CommaTail("PGIMER,,"))
	assert.Equal(t, "", CommaHead(",,"))
}

func TestDotStrip(t *testing.T) {
	assert.Equal(t, "A J INSTITUTE", DotStrip("A.J. INSTITUTE"))
	assert.Equal(t, DotStrip("A.J."), DotStrip("A J"))
	assert.Equal(t, "S K S", DotStrip("S.K.S."))
}

func TestTermVector(t *testing.T) {
	vec := newGen().TermVector("INSTITUTE OF MEDICAL SCIENCES, MEDICAL")
	assert.Equal(t, map[string]float64{"INSTITUTE": 1, "MEDICAL": 2, "SCIENCES": 1}, vec)
	assert.Nil(t, newGen().TermVector("OF THE"))
}
