package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithSeed records ids as already seen.
func WithSeed(ids ...string) Option {
	return func(d *inMemoryDeduper) {
		for _, id := range ids {
			d.seen[id] = struct{}{}
		}
	}
}
