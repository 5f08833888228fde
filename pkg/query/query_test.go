package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/pkg/domain"
)

func mustCompile(t *testing.T, clauses []Clause) Matcher {
	t.Helper()
	m, err := Compile(clauses)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func cond(prop, op string, value any) Clause {
	return Clause{Prop: prop, Op: op, Value: value}
}

func connector(b string) Clause {
	return Clause{Bool: b}
}

func paren(p string) Clause {
	return Clause{Parens: p}
}

func TestCompileEmpty(t *testing.T) {
	m, err := Compile(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = Compile([]Clause{})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSingleCondition(t *testing.T) {
	m := mustCompile(t, []Clause{cond("department", "=", "sales")})

	assert.True(t, m(map[string]any{"meta_department": "sales"}))
	assert.False(t, m(map[string]any{"meta_department": "support"}))
	assert.False(t, m(map[string]any{}), "missing property never matches")
}

func TestReservedVsMetadataProps(t *testing.T) {
	m := mustCompile(t, []Clause{cond("name", "=", "report")})
	assert.True(t, m(map[string]any{"name": "report"}),
		"reserved properties resolve to their stored names")
	assert.False(t, m(map[string]any{"meta_name": "report"}))

	m = mustCompile(t, []Clause{cond("key", "STARTS WITH", "inv-")})
	assert.True(t, m(map[string]any{"key": "inv-2025"}))
}

func TestStringOperators(t *testing.T) {
	props := map[string]any{"meta_department": "sales-emea"}

	assert.True(t, mustCompile(t, []Clause{cond("department", "starts with", "sal")})(props),
		"operators are case-insensitive")
	assert.True(t, mustCompile(t, []Clause{cond("department", "ENDS WITH", "emea")})(props))
	assert.True(t, mustCompile(t, []Clause{cond("department", "CONTAINS", "es-em")})(props))
	assert.False(t, mustCompile(t, []Clause{cond("department", "CONTAINS", "finance")})(props))
}

func TestNumericComparison(t *testing.T) {
	m := mustCompile(t, []Clause{cond("targetRate", ">=", 4.22)})
	assert.True(t, m(map[string]any{"meta_targetRate": 4.22}))
	assert.True(t, m(map[string]any{"meta_targetRate": int64(5)}),
		"integers and floats compare numerically")
	assert.False(t, m(map[string]any{"meta_targetRate": 4.0}))
	assert.False(t, m(map[string]any{"meta_targetRate": "4.22"}),
		"type mismatch is false, not an error")
}

func TestBoolEquality(t *testing.T) {
	m := mustCompile(t, []Clause{cond("quotaCarrying", "=", true)})
	assert.True(t, m(map[string]any{"meta_quotaCarrying": true}))
	assert.False(t, m(map[string]any{"meta_quotaCarrying": false}))

	m = mustCompile(t, []Clause{cond("quotaCarrying", "<>", true)})
	assert.True(t, m(map[string]any{"meta_quotaCarrying": false}))
	assert.False(t, m(map[string]any{}))
}

func TestDatetimeAutodetect(t *testing.T) {
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m := mustCompile(t, []Clause{cond("createdAt", ">", "2025-03-01T00:00:00Z")})

	assert.True(t, m(map[string]any{"createdAt": cutoff.Add(time.Hour)}))
	assert.False(t, m(map[string]any{"createdAt": cutoff.Add(-time.Hour)}))
}

func TestPrecedence(t *testing.T) {
	// a OR b AND c parses as a OR (b AND c).
	m := mustCompile(t, []Clause{
		cond("a", "=", true),
		connector("OR"),
		cond("b", "=", true),
		connector("AND"),
		cond("c", "=", true),
	})
	assert.True(t, m(map[string]any{"meta_a": true, "meta_b": false, "meta_c": false}))
	assert.False(t, m(map[string]any{"meta_a": false, "meta_b": true, "meta_c": false}))
	assert.True(t, m(map[string]any{"meta_a": false, "meta_b": true, "meta_c": true}))
}

func TestParensOverridePrecedence(t *testing.T) {
	// (a OR b) AND c.
	m := mustCompile(t, []Clause{
		paren("("),
		cond("a", "=", true),
		connector("OR"),
		cond("b", "=", true),
		paren(")"),
		connector("AND"),
		cond("c", "=", true),
	})
	assert.False(t, m(map[string]any{"meta_a": true, "meta_b": false, "meta_c": false}))
	assert.True(t, m(map[string]any{"meta_b": true, "meta_c": true}))
}

func TestXor(t *testing.T) {
	m := mustCompile(t, []Clause{
		cond("a", "=", true),
		connector("xor"),
		cond("b", "=", true),
	})
	assert.True(t, m(map[string]any{"meta_a": true}))
	assert.True(t, m(map[string]any{"meta_b": true}))
	assert.False(t, m(map[string]any{"meta_a": true, "meta_b": true}))
	assert.False(t, m(map[string]any{}))
}

func TestNegatingConnectors(t *testing.T) {
	m := mustCompile(t, []Clause{
		cond("a", "=", true),
		connector("AND NOT"),
		cond("b", "=", true),
	})
	assert.True(t, m(map[string]any{"meta_a": true}))
	assert.False(t, m(map[string]any{"meta_a": true, "meta_b": true}))

	m = mustCompile(t, []Clause{
		connector("NOT"),
		cond("a", "=", true),
	})
	assert.True(t, m(map[string]any{}))
	assert.False(t, m(map[string]any{"meta_a": true}))
}

func TestClauseValidation(t *testing.T) {
	_, err := Compile([]Clause{cond("a", "LIKE", "x")})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidQuerySyntax))

	_, err = Compile([]Clause{cond("a", "=", true), connector("NAND"), cond("b", "=", true)})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidQuerySyntax))

	_, err = Compile([]Clause{cond("bad prop", "=", "x")})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidQuerySyntax))

	_, err = Compile([]Clause{{Parens: "["}})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidQuerySyntax))

	_, err = Compile([]Clause{{}})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidQuerySyntax))
}

func TestStructuralErrors(t *testing.T) {
	_, err := Compile([]Clause{cond("a", "=", true), connector("AND")})
	assert.True(t, domain.IsCode(err, domain.CodeQueryCompile), "dangling connector")

	_, err = Compile([]Clause{paren("("), cond("a", "=", true)})
	assert.True(t, domain.IsCode(err, domain.CodeQueryCompile), "unbalanced parens")

	_, err = Compile([]Clause{cond("a", "=", true), cond("b", "=", true)})
	assert.True(t, domain.IsCode(err, domain.CodeQueryCompile), "adjacent conditions")

	_, err = Compile([]Clause{connector("AND"), cond("a", "=", true)})
	assert.True(t, domain.IsCode(err, domain.CodeQueryCompile), "leading connector")
}
