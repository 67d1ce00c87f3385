package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["version"])
	assert.True(t, names["verify"])
}

func TestVerifyCmd_EmptyStorePasses(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dawnsearch.toml")
	content := "data_dir = \"" + dir + "\"\nweb = false\nudp = false\nindex_cc = true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"verify", cfgPath})

	err := root.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "page_store_integrity")
}
