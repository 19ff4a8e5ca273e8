package dedupe

// Option tunes a Set.
type Option func(shards *int)

// WithShards sets how many independently locked maps back the set.
func WithShards(n int) Option {
	return func(shards *int) {
		if n > 0 {
			*shards = n
		}
	}
}
