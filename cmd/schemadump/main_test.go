package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"relquery/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MemoryDialectToStdout(t *testing.T) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--database.dialect", "memory"})

	require.NoError(t, cmd.Execute(), errOut.String())

	sch, err := schema.Decode(&out)
	require.NoError(t, err)
	require.NoError(t, sch.Finalize(nil))
	assert.Equal(t, []string{"store", "staff", "customer", "payment"}, sch.TableNames())
}

func TestRun_WritesOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--database.dialect", "memory", "-o", path})

	require.NoError(t, cmd.Execute())

	sch, err := schema.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, sch.Entities, 4)
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--database.dialect", "oracle"})
	assert.ErrorContains(t, cmd.Execute(), "database.dialect")
}
