package cache

import "strings"

// Key builds a namespaced cache key. The layout
// {gameID}:{branch}:{purpose}:{ids...} is inspected by external tooling and
// must stay stable.
func Key(gameID, branch, purpose string, ids ...string) string {
	parts := append([]string{gameID, branch, purpose}, ids...)
	return strings.Join(parts, ":")
}

// ElementsKey addresses a player's aggregated element snapshot.
func ElementsKey(gameID, branch, clientID, env string) string {
	return Key(gameID, branch, "elements", clientID, env)
}

// InventoryKey addresses a player's full inventory payload.
func InventoryKey(gameID, branch, clientID, env string) string {
	return Key(gameID, branch, "inventory", clientID, env)
}

// SegmentsKey addresses the set of segment IDs a player belongs to.
func SegmentsKey(gameID, branch, clientID, env string) string {
	return Key(gameID, branch, "segments", clientID, env)
}

// LeaderboardTopKey addresses a cached timeframe top snapshot.
func LeaderboardTopKey(gameID, branch, timeframeKey, env string) string {
	return Key(gameID, branch, "leaderboard", timeframeKey, env)
}

// LeaderboardAltKey addresses an alternative-calculation snapshot.
func LeaderboardAltKey(gameID, branch, timeframeKey, env string) string {
	return Key(gameID, branch, "leaderboard-alt", timeframeKey, env)
}

// DirtySetKey names the remote set holding dirty keys for a durable table.
// Dirty sets are process-global per table so the sync cycle can drain them
// without enumerating games.
func DirtySetKey(table string) string {
	return "dirty:" + table
}
