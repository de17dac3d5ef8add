package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Approve(t *testing.T) {
	var asked []string
	var testCases = []struct {
		description string
		policy      *Policy
		task        string
		expect      bool
	}{
		{description: "nil policy", task: "build.compile", expect: true},
		{description: "auto", policy: &Policy{Mode: ModeAuto}, task: "build.compile", expect: true},
		{description: "deny", policy: &Policy{Mode: ModeDeny}, task: "build.compile", expect: false},
		{description: "blocked", policy: &Policy{BlockList: []string{"Build.Compile"}}, task: "build.compile", expect: false},
		{description: "not in allow list", policy: &Policy{AllowList: []string{"build.link"}}, task: "build.compile", expect: false},
		{description: "ask without func", policy: &Policy{Mode: ModeAsk}, task: "build.compile", expect: false},
		{
			description: "ask approves",
			policy: &Policy{Mode: ModeAsk, Ask: func(ctx context.Context, task string, args map[string]interface{}, p *Policy) bool {
				asked = append(asked, task)
				return true
			}},
			task:   "build.link",
			expect: true,
		},
	}
	for _, testCase := range testCases {
		ctx := WithPolicy(context.Background(), testCase.policy)
		actual := FromContext(ctx).Approve(ctx, testCase.task, nil)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
	assert.Equal(t, []string{"build.link"}, asked)
}

func TestConfig_RoundTrip(t *testing.T) {
	p := &Policy{Mode: ModeAsk, AllowList: []string{"a.b"}, BlockList: []string{"c.d"}}
	restored := FromConfig(ToConfig(p))
	assert.Equal(t, p.Mode, restored.Mode)
	assert.Equal(t, p.AllowList, restored.AllowList)
	assert.Equal(t, p.BlockList, restored.BlockList)
	assert.Nil(t, ToConfig(nil))
	assert.Nil(t, FromConfig(nil))
	assert.Nil(t, FromContext(context.Background()))
}
