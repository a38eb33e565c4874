package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"

	"whybot/internal/service/answer"
)

// StubClient заглушка, которая не делает реальных запросов.
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) GenerateStructured(_ context.Context, req answer.TextRequest) (answer.TextReply, error) {
	q := req.Prompt
	if i := strings.LastIndex(q, "The child is now asking: "); i >= 0 {
		q = strings.TrimSpace(strings.SplitN(q[i:], "\n", 2)[0])
	}
	b, err := json.Marshal(map[string]string{
		answer.FieldAnswer:      "That is a wonderful question! " + q,
		answer.FieldImagePrompt: "A friendly robot thinking under a tree",
	})
	if err != nil {
		return answer.TextReply{}, err
	}
	return answer.TextReply{Raw: string(b)}, nil
}

func (c *StubClient) GenerateImages(_ context.Context, req answer.ImageRequest) ([][]byte, error) {
	n := max(req.Count, 1)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 135, G: 206, B: 235, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = buf.Bytes()
	}
	return out, nil
}
