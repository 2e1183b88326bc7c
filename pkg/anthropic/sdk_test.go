package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"components": [`},
			{Type: "text", Text: `]}`},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, `{"components": []}`, resp.Text())
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:         "msg_empty",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "max_tokens",
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestMessageResponse_TextSkipsNonText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "hmm"},
		{Type: "text", Text: "answer"},
	}}
	assert.Equal(t, "answer", resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Question"},
		{Role: "assistant", Content: "Answer"},
		{Role: "unknown", Content: "Follow-up"},
	}
	sdkMsgs, err := toSDKMessages(msgs)
	require.NoError(t, err)
	require.Len(t, sdkMsgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, sdkMsgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[2].Role)
}

func TestToSDKMessages_Empty(t *testing.T) {
	sdkMsgs, err := toSDKMessages(nil)
	require.NoError(t, err)
	assert.Empty(t, sdkMsgs)
}

func TestToSDKMessages_ImagesBeforeText(t *testing.T) {
	sdkMsgs, err := toSDKMessages([]Message{{
		Role:    "user",
		Content: "List the components",
		Images:  []string{"https://storage.example/shot.png", "data:image/png;base64,iVBORw0K"},
	}})
	require.NoError(t, err)
	require.Len(t, sdkMsgs, 1)

	content := sdkMsgs[0].Content
	require.Len(t, content, 3)
	require.NotNil(t, content[0].OfImage)
	require.NotNil(t, content[0].OfImage.Source.OfURL)
	assert.Equal(t, "https://storage.example/shot.png", content[0].OfImage.Source.OfURL.URL)
	require.NotNil(t, content[1].OfImage)
	require.NotNil(t, content[1].OfImage.Source.OfBase64)
	assert.Equal(t, "iVBORw0K", content[1].OfImage.Source.OfBase64.Data)
	require.NotNil(t, content[2].OfText)
	assert.Equal(t, "List the components", content[2].OfText.Text)
}

func TestToSDKMessages_BadDataURI(t *testing.T) {
	for _, ref := range []string{"data:image/png,raw", "data:;base64,abc", "data:image/png;base64"} {
		_, err := toSDKMessages([]Message{{Role: "user", Content: "x", Images: []string{ref}}})
		assert.Error(t, err, ref)
	}
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "First block"},
		{Text: "Second block", CacheControl: &CacheControl{TTL: "5m"}},
		{Text: "Third block", CacheControl: &CacheControl{}},
	}
	sdkBlocks := toSDKSystemBlocks(blocks)
	require.Len(t, sdkBlocks, 3)
	assert.Equal(t, "First block", sdkBlocks[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), sdkBlocks[1].CacheControl.TTL)
	assert.Equal(t, "Third block", sdkBlocks[2].Text)
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	client := NewClient("test-api-key")
	require.NotNil(t, client)
}
