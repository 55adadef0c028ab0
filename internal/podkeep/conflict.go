package podkeep

// Resolution says which side of a contested write was kept.
type Resolution string

const (
	ResolutionLocalWins  Resolution = "local_wins"
	ResolutionServerWins Resolution = "server_wins"
	ResolutionMerged     Resolution = "merged"
)

// ConflictType names the entity kind a conflict was recorded for.
type ConflictType string

const (
	ConflictTypeSubscription ConflictType = "subscription"
	ConflictTypePlayPosition ConflictType = "play_position"
	ConflictTypePlaylist     ConflictType = "playlist"
)

// ConflictRecord describes one resolution the engine made against a
// differing server state. It is returned to the client for debugging and
// never persisted.
type ConflictRecord struct {
	Type       ConflictType   `json:"type"`
	Local      map[string]any `json:"local"`
	Remote     map[string]any `json:"remote"`
	Resolution Resolution     `json:"resolution"`
	Reason     string         `json:"reason"`
}
