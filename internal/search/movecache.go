package search

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/notnil/chess"

	"github.com/arcbishop/chessbench/internal/movecodec"
)

// moveCache is an in-process admission cache of fully decoded main-line
// iterations, keyed by (archive path, game id, start fen). It is distinct
// from the bespoke-eviction result cache (cache.go): that one caches a
// whole search's aggregated answer, this one caches the expensive
// per-game blob decode (legal-move generation at every ply) that many
// different queries against the same archive end up repeating against the
// same popular games. Ristretto's admission+TinyLFU eviction is exactly
// the "keep what's hot, forget what's cold" policy an unbounded decode
// cache needs and the bespoke result cache explicitly does not want.
var moveCache, _ = ristretto.NewCache(&ristretto.Config[string, []movecodec.Step]{
	NumCounters: 1e6,
	MaxCost:     1 << 26, // ~64MB of decoded steps
	BufferItems: 64,
})

func moveCacheKey(archivePath string, gameID int64, startFEN string) string {
	return fmt.Sprintf("%s|%d|%s", archivePath, gameID, startFEN)
}

// decodedMainLine returns the fully decoded main line for (archivePath,
// gameID), decoding and caching it on first use. The decode has no
// reachability cutoff of its own: callers that want early-exit pruning
// apply it themselves by walking the returned
// slice and stopping early, which keeps the cache entry reusable for any
// later query against the same game regardless of where an earlier query's
// cutoff happened to land.
func decodedMainLine(archivePath string, gameID int64, start *chess.Position, blob []byte) []movecodec.Step {
	key := moveCacheKey(archivePath, gameID, start.String())
	if steps, ok := moveCache.Get(key); ok {
		return steps
	}
	steps := movecodec.IterateMainLine(blob, start)
	moveCache.Set(key, steps, int64(len(steps)+1))
	return steps
}
