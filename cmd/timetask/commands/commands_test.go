package commands_test

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandasAtHome/TimeTask/cmd/timetask/commands"
	"github.com/pandasAtHome/TimeTask/internal/config"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
	"github.com/pandasAtHome/TimeTask/internal/task"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	fs := afero.NewMemMapFs()
	prev := config.AppFs
	config.AppFs = fs
	t.Cleanup(func() { config.AppFs = prev })

	var out, errOut bytes.Buffer
	cmd := commands.NewRootCommand(&out, &errOut)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCompileSQL(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "select many",
			args: []string{"users", "--where", `status = "active" and age > 18`, "--order", "id desc"},
			want: "SELECT * FROM users WHERE `status` = 'active' AND `age` > '18' ORDER BY id DESC\n",
		},
		{
			name: "delete touches one row by default",
			args: []string{"orders", "--op", "delete", "--where", "id = 5"},
			want: "DELETE FROM orders WHERE `id` = 5 LIMIT 1\n",
		},
		{
			name: "update with multi",
			args: []string{"orders", "--op", "update", "--where", `status = "new"`, "--set", "status=paid", "--multi"},
			want: "UPDATE orders SET `status` = 'paid' WHERE `status` = 'new'\n",
		},
		{
			name: "count",
			args: []string{"orders", "--op", "count"},
			want: "SELECT COUNT(*) total FROM orders\n",
		},
		{
			name: "sum",
			args: []string{"orders", "--op", "sum", "--key", "amount", "--where", "id in (1, 2)"},
			want: "SELECT SUM(amount) total FROM orders WHERE `id` IN (1, 2)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, append([]string{"compile", "sql"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCompileSQL_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown op", args: []string{"users", "--op", "merge"}},
		{name: "delete without filter", args: []string{"users", "--op", "delete"}},
		{name: "update without set", args: []string{"users", "--op", "update", "--where", "id = 1"}},
		{name: "sum without key", args: []string{"users", "--op", "sum"}},
		{name: "bad filter", args: []string{"users", "--where", "id = = 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append([]string{"compile", "sql"}, tt.args...)...)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestCompileMongo(t *testing.T) {
	out, _, err := execute(t, "compile", "mongo", "orders",
		"--database", "app", "--op", "count", "--dedupe", "uid", "--group", "country")
	require.NoError(t, err)

	assert.Contains(t, out, `"aggregate":"orders"`)
	assert.Contains(t, out, `"$group"`)
	assert.Contains(t, out, `"_id":"$_id.country"`)
}

func TestRun(t *testing.T) {
	out, _, err := execute(t, "run", "/test/params", "a=1", "extra")
	require.NoError(t, err)

	assert.Contains(t, out, "path: test/params")
	assert.Contains(t, out, "param a: 1")
	assert.Contains(t, out, "arg 0: extra")
	assert.Contains(t, out, "OK   ")
}

func TestRun_Parallel(t *testing.T) {
	out, _, err := execute(t, "run", "--parallel", "/test/params?a=1", "/test/params?b=2")
	require.NoError(t, err)

	assert.Contains(t, out, "param a: 1")
	assert.Contains(t, out, "param b: 2")
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("OK   ")))
}

func TestRun_UnknownTask(t *testing.T) {
	_, _, err := execute(t, "run", "/nope/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestRun_MissingConnectionFails(t *testing.T) {
	out, _, err := execute(t, "run", "/mysql/count", "table=orders")
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err), "got %v", err)
	assert.Contains(t, out, "FAIL ")
}

func TestTasks(t *testing.T) {
	out, _, err := execute(t, "tasks")
	require.NoError(t, err)

	for _, path := range []string{"/test/params", "/mysql/count", "/mongo/distinct"} {
		assert.Contains(t, out, path)
	}
}

func TestTasksDescribe(t *testing.T) {
	out, _, err := execute(t, "tasks", "describe", "/MySQL/count")
	require.NoError(t, err)
	assert.Contains(t, out, "/mysql/count")
	assert.Contains(t, out, "table")

	_, _, err = execute(t, "tasks", "describe", "/mysql/nothing")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestConfigInit(t *testing.T) {
	fs := afero.NewMemMapFs()
	prev := config.AppFs
	config.AppFs = fs
	t.Cleanup(func() { config.AppFs = prev })

	run := func(args ...string) error {
		var out bytes.Buffer
		cmd := commands.NewRootCommand(&out, &out)
		cmd.SetArgs(append([]string{"--no-color"}, args...))
		return cmd.Execute()
	}

	require.NoError(t, run("config", "init", "conf/timetask.yaml"))
	exists, err := afero.Exists(fs, "conf/timetask.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Error(t, run("config", "init", "conf/timetask.yaml"))
	assert.NoError(t, run("config", "init", "--force", "conf/timetask.yaml"))
}

func TestVersion(t *testing.T) {
	out, errOut, err := execute(t, "version", "--latest", "99.0.0")
	require.NoError(t, err)

	assert.Contains(t, out, "timetask version ")
	assert.Contains(t, errOut+out, "99.0.0")
}
