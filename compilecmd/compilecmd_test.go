package compilecmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tangled.sh/tangled.sh/stepc/config"
)

const workflowFile = `
steps:
  - count:
      image: busybox
      commands: [wc -l input.txt]
      compute:
        memory: 2 GiB
  - finish:
      Type: Succeed
`

func writeWorkflow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "count.yml")
	require.NoError(t, os.WriteFile(path, []byte(workflowFile), 0o644))
	return path
}

func testConfig() *config.Config {
	return &config.Config{
		CoreStack: config.CoreStack{Name: "bclaw-core"},
		Compiler:  config.Compiler{MaxDepth: 8, LogLevel: "info"},
	}
}

func TestCompileJSON(t *testing.T) {
	var out bytes.Buffer
	err := compile(context.Background(), testConfig(), writeWorkflow(t), "json", &out)
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))

	assert.Equal(t, "count", doc["StateMachine"]["StartAt"])
	assert.Contains(t, doc["Resources"], "CountJobDef")
}

func TestCompileYAML(t *testing.T) {
	var out bytes.Buffer
	err := compile(context.Background(), testConfig(), writeWorkflow(t), "yaml", &out)
	require.NoError(t, err)

	var doc struct {
		StateMachine struct {
			StartAt string `yaml:"StartAt"`
		} `yaml:"StateMachine"`
		Resources map[string]any `yaml:"Resources"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))

	assert.Equal(t, "count", doc.StateMachine.StartAt)
	assert.Contains(t, doc.Resources, "CountJobDef")
}

func TestCompileErrors(t *testing.T) {
	var out bytes.Buffer

	err := compile(context.Background(), testConfig(), filepath.Join(t.TempDir(), "missing.yml"), "json", &out)
	assert.Error(t, err)

	err = compile(context.Background(), testConfig(), writeWorkflow(t), "toml", &out)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}
