package compiler_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandasAtHome/TimeTask/internal/core/query/builder"
	"github.com/pandasAtHome/TimeTask/internal/core/query/compiler"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

func activeAdults() builder.QueryBuilder {
	return builder.New().
		Where(builder.Equals("status", "active"), builder.Gt("age", 18)).
		Desc("id")
}

func TestSQLCompiler_SelectMany(t *testing.T) {
	comp := compiler.NewSQLCompiler()

	tests := []struct {
		name     string
		opts     domain.Options
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "filter and order",
			opts:     activeAdults().Build(),
			wantSQL:  "SELECT * FROM users WHERE `status` = ? AND `age` > ? ORDER BY id DESC",
			wantArgs: []any{"active", "18"},
		},
		{
			name:    "group and page",
			opts:    builder.New().Select("country").GroupBy(domain.Field("country")).Page(3, 10).Build(),
			wantSQL: "SELECT country FROM users GROUP BY country LIMIT 20,10",
		},
		{
			name:    "zero page size disables pagination",
			opts:    builder.New().Asc("id").Page(3, 0).Build(),
			wantSQL: "SELECT * FROM users ORDER BY id ASC",
		},
		{
			name:    "multiple order keys keep their order",
			opts:    builder.New().Desc("score").Asc("name").Build(),
			wantSQL: "SELECT * FROM users ORDER BY score DESC, name ASC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := comp.SelectMany("users", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, stmt.SQL)
			assert.Equal(t, tt.wantArgs, stmt.Args)
		})
	}
}

func TestSQLCompiler_SelectManyRendersScenario(t *testing.T) {
	stmt, err := compiler.NewSQLCompiler().SelectMany("users", activeAdults().Build())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM users WHERE `status` = 'active' AND `age` > '18' ORDER BY id DESC",
		stmt.String(),
	)
}

func TestSQLCompiler_SelectOne(t *testing.T) {
	opts := builder.New().
		Where(builder.Equals("status", "active")).
		Select("id", "name").
		Offset(5).
		Page(9, 50).
		Build()

	stmt, err := compiler.NewSQLCompiler().SelectOne("users", opts)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE `status` = ? LIMIT 5,1", stmt.SQL)
	assert.Equal(t, []any{"active"}, stmt.Args)
}

func TestSQLCompiler_Update(t *testing.T) {
	comp := compiler.NewSQLCompiler()
	set := domain.Record{
		"name": "bob",
		"tags": []string{"a", "b"},
		"note": "",
	}

	t.Run("single row", func(t *testing.T) {
		stmt, err := comp.Update("users", set, builder.New().Where(builder.Equals("id", 7)).Build(), true)
		require.NoError(t, err)
		assert.Equal(t, "UPDATE users SET `name` = ?, `note` = NULL, `tags` = ? WHERE `id` = ? LIMIT 1", stmt.SQL)
		assert.Equal(t, []any{"bob", `["a","b"]`, 7}, stmt.Args)
	})

	t.Run("all matching rows", func(t *testing.T) {
		stmt, err := comp.Update("users", domain.Record{"score": 0}, builder.New().Where(builder.Lt("score", 0)).Build(), false)
		require.NoError(t, err)
		assert.Equal(t, "UPDATE users SET `score` = ? WHERE `score` < ?", stmt.SQL)
		assert.Equal(t, []any{0, "0"}, stmt.Args)
	})

	t.Run("empty filter", func(t *testing.T) {
		_, err := comp.Update("users", set, domain.Options{}, false)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("filter without usable conditions", func(t *testing.T) {
		_, err := comp.Update("users", set, builder.New().Where(builder.In("id", "x")).Build(), false)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("empty set", func(t *testing.T) {
		_, err := comp.Update("users", nil, builder.New().Where(builder.Equals("id", 1)).Build(), false)
		assert.True(t, domain.IsValidation(err))
	})
}

func TestSQLCompiler_Delete(t *testing.T) {
	comp := compiler.NewSQLCompiler()

	stmt, err := comp.Delete("users", builder.New().Where(builder.In("id", []int{1, 2, 3})).Build(), false)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM users WHERE `id` IN (?, ?, ?)", stmt.SQL)
	assert.Equal(t, []any{1, 2, 3}, stmt.Args)

	stmt, err = comp.Delete("users", builder.New().Where(builder.Equals("id", 1)).Build(), true)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM users WHERE `id` = ? LIMIT 1", stmt.SQL)

	_, err = comp.Delete("users", domain.Options{}, true)
	assert.True(t, domain.IsValidation(err))
}

func TestSQLCompiler_DeleteKeepsRawFragmentScoped(t *testing.T) {
	comp := compiler.NewSQLCompiler()

	stmt, err := comp.Delete("orders", builder.New().Where(
		builder.Raw("status = 'a' OR status = 'b'"),
		builder.Equals("tenant", 7),
	).Build(), false)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM orders WHERE (status = 'a' OR status = 'b') AND `tenant` = ?", stmt.SQL)
	assert.Equal(t, "DELETE FROM orders WHERE (status = 'a' OR status = 'b') AND `tenant` = 7", stmt.String())

	_, err = comp.Delete("orders", builder.New().Where(
		builder.Raw("note LIKE 'a' OR x = ?x"),
		builder.Equals("id", 1),
	).Build(), false)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestSQLCompiler_CountAndSum(t *testing.T) {
	comp := compiler.NewSQLCompiler()
	opts := builder.New().Where(builder.Equals("status", "active")).Build()

	stmt, err := comp.Count("users", opts)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) total FROM users WHERE `status` = ?", stmt.SQL)

	stmt, err = comp.Sum("users", "score", domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(score) total FROM users", stmt.SQL)
	assert.Empty(t, stmt.Args)

	_, err = comp.Sum("users", "score) FROM x;--", domain.Options{})
	assert.True(t, domain.IsValidation(err))
}

func TestSQLCompiler_InsertMany(t *testing.T) {
	records := []domain.Record{
		{"a": 1, "b": 2},
		{"a": 3},
		{"b": 4, "a": 5},
	}

	stmt, err := compiler.NewSQLCompiler().InsertMany("t", records)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (`a`, `b`) VALUES (?, ?), (?, ?)", stmt.SQL)
	assert.Equal(t, []any{1, 2, 5, 4}, stmt.Args)
	assert.Equal(t, []int{1}, stmt.Skipped)

	_, err = compiler.NewSQLCompiler().InsertMany("t", nil)
	assert.True(t, domain.IsValidation(err))
}

func TestSQLCompiler_RejectsBadIdentifiers(t *testing.T) {
	comp := compiler.NewSQLCompiler()

	_, err := comp.SelectMany("users; DROP TABLE users", domain.Options{})
	assert.True(t, domain.IsValidation(err))

	_, err = comp.SelectMany("users", builder.New().Desc("id; --").Build())
	assert.True(t, domain.IsValidation(err))

	_, err = comp.SelectOne("users", builder.New().Select("password)").Build())
	assert.True(t, domain.IsValidation(err))
}

func TestStatement_StringEscapesLiterals(t *testing.T) {
	stmt := compiler.Statement{
		SQL:  "SELECT * FROM t WHERE `a` = ? AND `b` = ? AND `c` = '?'",
		Args: []any{"it's", nil},
	}
	assert.Equal(t, "SELECT * FROM t WHERE `a` = 'it\\'s' AND `b` = NULL AND `c` = '?'", stmt.String())
}

func TestSQLCompiler_Golden(t *testing.T) {
	comp := compiler.NewSQLCompiler()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	selectMany, err := comp.SelectMany("users", activeAdults().Page(2, 25).Build())
	require.NoError(t, err)
	g.Assert(t, "select_many", []byte(selectMany.String()+"\n"))

	update, err := comp.Update("users",
		domain.Record{"name": "bob", "tags": []string{"a", "b"}, "note": ""},
		builder.New().Where(builder.Equals("id", 7)).Build(),
		true,
	)
	require.NoError(t, err)
	g.Assert(t, "update_single", []byte(update.String()+"\n"))

	insert, err := comp.InsertMany("t", []domain.Record{{"a": 1, "b": "x"}, {"a": 2, "b": "y"}})
	require.NoError(t, err)
	g.Assert(t, "insert_many", []byte(insert.String()+"\n"))
}
