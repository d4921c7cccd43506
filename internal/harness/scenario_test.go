package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: valid
description: "A valid scenario"
token_prefix: v
calls:
  - as: A
    op: post
    recipient: B
    content: hi
    nickname: al
    expect:
      case: ok
      result: { id: 1 }
  - as: B
    op: tip
    target: 1
    amount: 3
assertions:
  - type: stats
    id: 1
    expect: { tip_total: 3 }
  - type: count
    count: 1
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, "v", s.TokenPrefix)
	require.Len(t, s.Calls, 2)
	require.NotNil(t, s.Calls[0].Nickname)
	assert.Equal(t, "al", *s.Calls[0].Nickname)
	assert.Equal(t, map[string]any{"id": 1}, s.Calls[0].Expect.Result)
	assert.Equal(t, int64(3), s.Calls[1].Amount)
	assert.Nil(t, s.Calls[1].Expect)
	require.Len(t, s.Assertions, 2)
	assert.Equal(t, int64(1), s.Assertions[0].ID)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Misspelled key"
calls:
  - as: A
    op: count
assertion:
  - type: count
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\ncalls: [{as: A, op: count}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\ncalls: [{as: A, op: count}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no calls",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "calls list is required",
		},
		{
			name:    "missing caller",
			yaml:    "name: n\ndescription: d\ncalls: [{op: count}]\n",
			wantErr: "calls[0]: as is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: delete}]\n",
			wantErr: `calls[0]: unknown op "delete"`,
		},
		{
			name:    "post without recipient",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: post}]\n",
			wantErr: "recipient is required for post",
		},
		{
			name:    "reply with recipient",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: reply, target: 1, recipient: B}]\n",
			wantErr: "recipient is only valid for post",
		},
		{
			name:    "amount on like",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: like, target: 1, amount: 2}]\n",
			wantErr: "amount is only valid for tip",
		},
		{
			name:    "target on post",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: post, recipient: B, target: 1}]\n",
			wantErr: "target is not valid for post",
		},
		{
			name:    "expect without case",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count, expect: {result: {count: 0}}}]\n",
			wantErr: "calls[0].expect: case is required",
		},
		{
			name:    "unknown case",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count, expect: {case: Success}}]\n",
			wantErr: `unknown case "Success"`,
		},
		{
			name:    "assertion without type",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count}]\nassertions: [{count: 1}]\n",
			wantErr: "assertions[0]: type is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count}]\nassertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name:    "message without id",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count}]\nassertions: [{type: message, expect: {sender: A}}]\n",
			wantErr: "id must be positive for message",
		},
		{
			name:    "stats without expect",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count}]\nassertions: [{type: stats, id: 1}]\n",
			wantErr: "expect is required for stats",
		},
		{
			name:    "negative count",
			yaml:    "name: n\ndescription: d\ncalls: [{as: A, op: count}]\nassertions: [{type: journal_count, count: -1}]\n",
			wantErr: "count must be non-negative for journal_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCallStep_Call(t *testing.T) {
	nick := "al"
	step := CallStep{As: "A", Op: "reply", Target: 3, Content: "hey", Nickname: &nick}

	call := step.Call()
	assert.Equal(t, "reply", string(call.Op))
	assert.Equal(t, "A", string(call.Caller))
	assert.Equal(t, int64(3), int64(call.Target))
	assert.Equal(t, []byte("hey"), call.Content)
	assert.Equal(t, &nick, call.Nickname)
	assert.Empty(t, call.Recipient)

	assert.Nil(t, CallStep{As: "A", Op: "like", Target: 1}.Call().Content)
}

func TestLoadScenarios_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	valid := "name: %s\ndescription: d\ncalls: [{as: A, op: count}]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(fmt.Sprintf(valid, "b")), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(fmt.Sprintf(valid, "a")), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0755))

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)

	single, err := LoadScenarios(filepath.Join(dir, "b.yml"))
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = LoadScenarios(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
