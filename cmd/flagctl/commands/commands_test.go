package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `
revision: "3"
ttl: 1m
flags:
  new_checkout: true
  max_items: {type: int, value: 10}
experiments:
  checkout_color:
    targeting: {type: region_in, regions: [BR]}
    variants:
      - {name: control, weight: 1, payload: blue}
`

func run(t *testing.T, doc string, args ...string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cmd := newRootCommand(logger, "test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--file", path))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := run(t, testDocument, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, `ok (revision "3", 2 flags, 1 experiments)`)
	assert.Contains(t, out, "flag max_items (int)")

	out, err = run(t, testDocument, "validate", "--json")
	require.NoError(t, err)

	var report validateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "1m0s", report.TTL)
	assert.Equal(t, "bool", report.Flags["new_checkout"])
	assert.Equal(t, 1, report.Experiments["checkout_color"])
}

func TestValidate_InvalidDocument(t *testing.T) {
	_, err := run(t, "flags: [unterminated", "validate")
	assert.Error(t, err)
}

func TestEval(t *testing.T) {
	out, err := run(t, testDocument, "eval", "max_items")
	require.NoError(t, err)
	assert.Equal(t, "max_items = 10 (int, from PROVIDER)\n", out)

	out, err = run(t, testDocument, "eval", "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing: not found\n", out)

	out, err = run(t, testDocument, "eval", "new_checkout", "--json")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["found"])
	assert.Equal(t, "PROVIDER", result["source"])
}

func TestEval_BadAttribute(t *testing.T) {
	_, err := run(t, testDocument, "eval", "max_items", "--attr", "novalue")
	assert.Error(t, err)
}

func TestEval_MissingFile(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cmd := newRootCommand(logger, "test", "none", "today")
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"eval", "x", "--file", filepath.Join(t.TempDir(), "nope.yaml")})

	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestAssign(t *testing.T) {
	out, err := run(t, testDocument, "assign", "checkout_color", "--user", "user-1", "--region", "BR")
	require.NoError(t, err)
	assert.Equal(t, "checkout_color: control (payload blue)\n", out)

	out, err = run(t, testDocument, "assign", "checkout_color", "--user", "user-1", "--region", "US")
	require.NoError(t, err)
	assert.Contains(t, out, "checkout_color: not assigned")

	out, err = run(t, testDocument, "assign", "checkout_color", "--user", "user-1", "--region", "BR", "--json")
	require.NoError(t, err)

	var result assignResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Assigned)
	assert.Equal(t, "control", result.Assignment.Variant)
}
