package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.sh/tangled.sh/stepc/corestack"
	"tangled.sh/tangled.sh/stepc/jobstep"
	"tangled.sh/tangled.sh/stepc/models"
)

const pipeline = `
options:
  task_role: arn:aws:iam::123456789012:role/pipeline
steps:
  - prep:
      image: prep-image
      commands: [prepare]
  - fan_out:
      Type: Parallel
      Branches:
        - steps:
            - left:
                image: left-image
                commands: [go left]
        - steps:
            - right:
                image: right-image
                commands: [go right]
      ResultPath: $.ignored
  - hold:
      Type: Wait
      Seconds: 30
  - done:
      Type: Succeed
`

func compilePipeline(t *testing.T, contents string) (*Template, *Compiler, error) {
	t.Helper()
	wf, err := FromFile(".stepc/pipeline.yml", []byte(contents))
	require.NoError(t, err)

	c := New(jobstep.New(corestack.New("bclaw-core", nil), wf.Options), 0)
	tpl, err := c.Compile(context.Background(), wf)
	return tpl, c, err
}

func TestCompileWorkflow(t *testing.T) {
	tpl, c, err := compilePipeline(t, pipeline)
	require.NoError(t, err)
	assert.True(t, c.Diagnostics.IsEmpty())

	assert.Equal(t, "prep", tpl.StartAt)
	assert.Equal(t, []string{"prep", "fan_out", "hold", "done"}, tpl.States.Keys())

	names := make([]string, 0, len(tpl.Resources))
	for _, r := range tpl.Resources {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"PrepJobDef", "LeftJobDef", "RightJobDef"}, names)

	prep, _ := tpl.States.Get("prep")
	next, _ := prep.(models.Spec).Get("Next")
	assert.Equal(t, "fan_out", next)

	fanOut, _ := tpl.States.Get("fan_out")
	next, _ = fanOut.(models.Spec).Get("Next")
	assert.Equal(t, "hold", next)

	hold, _ := tpl.States.Get("hold")
	next, _ = hold.(models.Spec).Get("Next")
	assert.Equal(t, "done", next)

	done, _ := tpl.States.Get("done")
	assert.Equal(t, []string{"Type"}, done.(models.Spec).Keys())
}

func TestTemplateDocument(t *testing.T) {
	tpl, _, err := compilePipeline(t, pipeline)
	require.NoError(t, err)

	doc, err := tpl.Document()
	require.NoError(t, err)
	assert.Equal(t, []string{"StateMachine", "Resources"}, doc.Keys())

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded struct {
		StateMachine struct {
			StartAt string
			States  map[string]map[string]any
		}
		Resources map[string]struct {
			Type       string
			Properties map[string]any
		}
	}
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, "prep", decoded.StateMachine.StartAt)
	assert.Len(t, decoded.StateMachine.States, 4)
	assert.Len(t, decoded.Resources, 3)
	assert.Equal(t, jobstep.ResourceKind, decoded.Resources["LeftJobDef"].Type)

	fanOut := decoded.StateMachine.States["fan_out"]
	assert.Contains(t, fanOut, "ResultPath")
	assert.Nil(t, fanOut["ResultPath"])
}

func TestTemplateDocumentDuplicateResource(t *testing.T) {
	// the same step name in two branches yields two resources with one name
	tpl, _, err := compilePipeline(t, `
steps:
  - fan_out:
      Type: Parallel
      Branches:
        - steps:
            - work:
                image: a
                commands: [ls]
        - steps:
            - work:
                image: b
                commands: [ls]
`)
	require.NoError(t, err)
	assert.Len(t, tpl.Resources, 2, "resources are not deduplicated")

	_, err = tpl.Document()
	assert.True(t, errors.Is(err, ErrDuplicateResource))
}

func TestCompileWorkflowFailureReturnsNothing(t *testing.T) {
	tpl, _, err := compilePipeline(t, `
steps:
  - first:
      image: a
      commands: [ls]
  - second:
      Type: Map
`)
	assert.Nil(t, tpl)
	assert.True(t, errors.Is(err, ErrUnrecognizedStepType))
}

func TestCompileWorkflowEmpty(t *testing.T) {
	c := New(nil, 0)
	_, err := c.Compile(context.Background(), Workflow{Name: "empty"})
	assert.True(t, errors.Is(err, ErrMalformedWorkflow))
}

func TestCompileWorkflowResetsDiagnostics(t *testing.T) {
	wf, err := FromFile("warn.yml", []byte(`
steps:
  - p:
      Type: Pass
      Result: {x: 1}
      ResultPath: $.x
`))
	require.NoError(t, err)

	c := New(nil, 0)
	for i := 0; i < 2; i++ {
		_, err := c.Compile(context.Background(), wf)
		require.NoError(t, err)
		require.Len(t, c.Diagnostics.Warnings, 1)
		assert.Equal(t, ResultDiscarded, c.Diagnostics.Warnings[0].Type)
	}
}
