// Package tiercache implements a two-tier read-through cache with proactive
// sliding revalidation and null-value round-tripping.
//
// Components:
//   - Client: the capability every backend variant satisfies (StoreClient over a
//     provider.Provider, replica.Client over a replicated Redis pair, NoneClient).
//   - Manager: composes a primary and an optional secondary tier and exposes the
//     generic TryCache / FromCache / ToCache operations.
//   - Codec: (de)serializes values to the bytes handed to a Client.
//
// Keys:
//
//	<key>                - the entry itself (or the null sentinel)
//	<key>_$@{EXT}@$      - a refresh is in flight for <key>
//	<key>_$@{TTL}@$      - sliding tracker, expires SlidingTTL before <key>
//
// Sliding pattern:
//
//	v, err := tiercache.TryCache(ctx, m, "report:42", loadReport)
//	// a hit close to expiry returns v immediately and refreshes it in the
//	// background; concurrent callers never run loadReport twice.
package tiercache
