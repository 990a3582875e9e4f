package quill

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens approximates the token count of text with the cl100k_base
// encoding. It returns 0 when the encoder is unavailable.
func EstimateTokens(text string) int {
	c, err := getCodec()
	if err != nil {
		return 0
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// estimatePromptTokens sums the estimate over everything a request sends.
func estimatePromptTokens(req InvocationRequest) int {
	n := EstimateTokens(req.System) + EstimateTokens(req.Prompt)
	for _, t := range req.History {
		if !t.Synthetic {
			n += EstimateTokens(t.Content)
		}
	}
	return n
}
