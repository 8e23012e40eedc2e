package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTrigger(t *testing.T) {
	assert.True(t, HasTrigger("@ai what is 2+2?", "@ai"))
	assert.True(t, HasTrigger("hey @ai", "@ai"))
	assert.True(t, HasTrigger("email@ai.dev", "@ai"), "plain substring match")
	assert.False(t, HasTrigger("hello there", "@ai"))
	assert.False(t, HasTrigger("@AI caps", "@ai"))
	assert.False(t, HasTrigger("anything", ""))
}

func TestExtractPrompt(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{"@ai what is 2+2?", "what is 2+2?"},
		{"  @ai   summarize this  ", "summarize this"},
		{"please @ai  explain", "please   explain"},
		{"@ai compare @ai and @bot", "compare @ai and @bot"},
		{"@ai", ""},
		{"   @ai   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractPrompt(tc.body, "@ai"), tc.body)
	}
}
