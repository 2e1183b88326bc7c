package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. Stage system prompts repeat for every screenshot in a batch,
// so they are marked cacheable with the given TTL ("5m" or "1h").
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
