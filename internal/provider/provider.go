// Package provider adapts the vendor clients to gateway.Capability and
// binds them to pipeline stages.
package provider

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/pkg/anthropic"
	"github.com/sells-group/ux-extract/pkg/moondream"
	"github.com/sells-group/ux-extract/pkg/openai"
)

// Provider names accepted in stage bindings.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameMoondream = "moondream"
)

// Anthropic is a vision generator backed by the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps client for gateway use.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Provider implements gateway.Capability.
func (a *Anthropic) Provider() string { return NameAnthropic }

// Model implements gateway.Capability.
func (a *Anthropic) Model() string { return a.model }

// Call sends the image and prompt as one user message.
func (a *Anthropic) Call(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	msg := anthropic.Message{Role: "user", Content: req.Prompt}
	if req.ImageURL != "" {
		msg.Images = []string{req.ImageURL}
	}
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(req.System, "5m"),
		Messages:  []anthropic.Message{msg},
	})
	if err != nil {
		return nil, err
	}
	return &gateway.Response{
		Text: resp.Text(),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Model: resp.Model,
	}, nil
}

// OpenAI is a vision generator backed by chat completions.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI wraps client for gateway use.
func NewOpenAI(client openai.Client, model string, maxTokens int64) *OpenAI {
	return &OpenAI{client: client, model: model, maxTokens: maxTokens}
}

// Provider implements gateway.Capability.
func (o *OpenAI) Provider() string { return NameOpenAI }

// Model implements gateway.Capability.
func (o *OpenAI) Model() string { return o.model }

// Call sends an optional system message and a user message with the
// image ahead of the prompt text.
func (o *OpenAI) Call(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	var msgs []openai.Message
	if req.System != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: []openai.ContentPart{openai.TextPart(req.System)}})
	}
	user := openai.Message{Role: "user"}
	if req.ImageURL != "" {
		user.Content = append(user.Content, openai.ImagePart(req.ImageURL))
	}
	user.Content = append(user.Content, openai.TextPart(req.Prompt))
	msgs = append(msgs, user)

	creq := openai.ChatCompletionRequest{Model: o.model, Messages: msgs}
	if o.maxTokens > 0 {
		creq.MaxTokens = &o.maxTokens
	}
	resp, err := o.client.ChatCompletion(ctx, creq)
	if err != nil {
		return nil, err
	}
	return &gateway.Response{
		Text:  resp.Text(),
		Usage: model.TokenUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
		Model: resp.Model,
	}, nil
}

// ImageSource turns an image URL into an inline data URI.
type ImageSource interface {
	DataURI(ctx context.Context, url string) (string, error)
}

// Moondream is a coordinate-only detector. Its response text is the raw
// detect JSON so the gateway parser sees {"objects": [...]}.
type Moondream struct {
	client moondream.Client
	model  string
	images ImageSource
	inline *lru.Cache[string, string]
}

// NewMoondream wraps client for gateway use. When images is non-nil, https
// image URLs are fetched once and sent inline as data URIs.
func NewMoondream(client moondream.Client, model string, images ImageSource) *Moondream {
	m := &Moondream{client: client, model: model, images: images}
	if images != nil {
		// Every label of a screenshot is detected against the same image.
		m.inline, _ = lru.New[string, string](16)
	}
	return m
}

// Provider implements gateway.Capability.
func (m *Moondream) Provider() string { return NameMoondream }

// Model implements gateway.Capability.
func (m *Moondream) Model() string { return m.model }

// Prepare implements gateway.Preparer. It swaps an image URL for its
// inline data URI so the download is not part of the detect call.
func (m *Moondream) Prepare(ctx context.Context, req gateway.Request) (gateway.Request, error) {
	image, err := m.imageRef(ctx, req.ImageURL)
	if err != nil {
		return req, err
	}
	req.ImageURL = image
	return req, nil
}

// Call detects every instance of req.Prompt in the image. A request that
// was not prepared is inlined here.
func (m *Moondream) Call(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	image, err := m.imageRef(ctx, req.ImageURL)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Detect(ctx, moondream.DetectRequest{ImageURL: image, Object: req.Prompt})
	if err != nil {
		return nil, err
	}
	return &gateway.Response{Text: string(resp.Raw), Model: m.model}, nil
}

func (m *Moondream) imageRef(ctx context.Context, url string) (string, error) {
	if m.images == nil || strings.HasPrefix(url, "data:") {
		return url, nil
	}
	if uri, ok := m.inline.Get(url); ok {
		return uri, nil
	}
	uri, err := m.images.DataURI(ctx, url)
	if err != nil {
		return "", eris.Wrap(err, "moondream: inline image")
	}
	m.inline.Add(url, uri)
	return uri, nil
}
