// Package cache stores analysis responses in Redis so repeated texts are not
// sent to the remote service twice.
//
// Entries are keyed by feature, language hint, feature flags and a SHA-256
// digest of the text; the text itself never appears in a key. Each entry
// carries its own expiry and Redis drops it after the TTL.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, 24*time.Hour)
//
//	key := cache.Key{Feature: "sentiment", Language: "en", Text: text}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// call the remote service, then
//		_ = manager.Set(ctx, key, cache.NewEntry("sentiment", payload, manager.TTL()))
//	}
//
// # Metrics
//
//   - nlp_cache_hits_total - Cache hits
//   - nlp_cache_misses_total - Cache misses
//   - nlp_cache_written_bytes_total - Bytes stored by Set
//   - nlp_cache_served_bytes_total - Bytes returned by cache hits
//   - nlp_cache_errors_total{operation} - Cache operation errors
package cache
