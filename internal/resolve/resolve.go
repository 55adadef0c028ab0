// Package resolve holds the per-kind conflict policies used during
// reconciliation. Every function here is pure: it compares a
// client-submitted state against the server's current state and decides
// on a winner, without touching storage or the clock.
//
// The tie-break rules are deliberately asymmetric: whenever the two
// sides compare equal, the server wins. A device resubmitting a write
// the server already holds then resolves to a no-op, which is what
// keeps retries idempotent.
package resolve

import (
	"time"

	"github.com/podkeep/podkeep/internal/podkeep"
)

// Reasons attached to conflict records.
const (
	ReasonLastWriteWins   = "last_write_wins"
	ReasonHighestProgress = "highest_progress"
	ReasonExplicitReset   = "explicit_reset"
	ReasonTombstone       = "tombstone"
)

// Subscription applies last-write-wins over the effective timestamp (the
// later of subscribed/unsubscribed). A nil server state means the key is
// new and the client trivially wins.
func Subscription(client podkeep.Subscription, server *podkeep.Subscription) (podkeep.Subscription, podkeep.Resolution, *podkeep.ConflictRecord) {
	if server == nil {
		return client, podkeep.ResolutionLocalWins, nil
	}

	ce, se := client.EffectiveAt(), server.EffectiveAt()

	winner, res := *server, podkeep.ResolutionServerWins
	if ce != nil && (se == nil || ce.After(*se)) {
		winner, res = client, podkeep.ResolutionLocalWins
	}

	// A real conflict needs comparable timestamps on both sides and an
	// actual difference in content. Identical resubmissions are silent.
	var conflict *podkeep.ConflictRecord
	if ce != nil && se != nil && !subscriptionEqual(client, *server) {
		conflict = &podkeep.ConflictRecord{
			Type:       podkeep.ConflictTypeSubscription,
			Local:      subscriptionFields(client),
			Remote:     subscriptionFields(*server),
			Resolution: res,
			Reason:     ReasonLastWriteWins,
		}
	}

	return winner, res, conflict
}

// PlayPosition keeps whichever side has listened further, unless the
// client marks an explicit reset, which always wins (an intentional
// rewind must not be "corrected" back up by the server). Equal positions
// fall back to the newer client timestamp; a full tie goes to the
// server. The played flag rides along with the winning side.
func PlayPosition(client podkeep.PlayPosition, server *podkeep.PlayPosition) (podkeep.PlayPosition, podkeep.Resolution, *podkeep.ConflictRecord) {
	if server == nil {
		return client, podkeep.ResolutionLocalWins, nil
	}

	differs := client.Position != server.Position || client.Played != server.Played

	if client.Reset {
		var conflict *podkeep.ConflictRecord
		if differs {
			conflict = &podkeep.ConflictRecord{
				Type:       podkeep.ConflictTypePlayPosition,
				Local:      playFields(client),
				Remote:     playFields(*server),
				Resolution: podkeep.ResolutionLocalWins,
				Reason:     ReasonExplicitReset,
			}
		}
		return client, podkeep.ResolutionLocalWins, conflict
	}

	res := podkeep.ResolutionServerWins
	switch {
	case client.Position > server.Position:
		res = podkeep.ResolutionLocalWins
	case client.Position < server.Position:
		res = podkeep.ResolutionServerWins
	case client.ClientUpdatedAt.After(server.ClientUpdatedAt):
		res = podkeep.ResolutionLocalWins
	}

	winner := *server
	if res == podkeep.ResolutionLocalWins {
		winner = client
	}

	var conflict *podkeep.ConflictRecord
	if differs {
		conflict = &podkeep.ConflictRecord{
			Type:       podkeep.ConflictTypePlayPosition,
			Local:      playFields(client),
			Remote:     playFields(*server),
			Resolution: res,
			Reason:     ReasonHighestProgress,
		}
	}

	return winner, res, conflict
}

// PlaylistDecision is the outcome for a playlist, which needs one extra
// bit over the other kinds: whether a tombstone cascade applies to the
// playlist's items.
type PlaylistDecision struct {
	Winner     podkeep.Playlist
	Resolution podkeep.Resolution
	Tombstone  bool
	Conflict   *podkeep.ConflictRecord
}

// Playlist resolves a playlist submission. A client tombstone with a
// newer client timestamp beats any other pending field change and
// cascades to the playlist's items. Otherwise the metadata fields (name,
// description, is_public) contest as one unit via last-write-wins on
// the client timestamp. Items never take part in the contest: they are
// written only when the playlist side of the client wins.
func Playlist(client podkeep.Playlist, server *podkeep.Playlist) PlaylistDecision {
	if server == nil {
		return PlaylistDecision{
			Winner:     client,
			Resolution: podkeep.ResolutionLocalWins,
			Tombstone:  client.DeletedAt != nil,
		}
	}

	differs := !playlistEqual(client, *server)

	if client.DeletedAt != nil && client.ClientUpdatedAt.After(server.ClientUpdatedAt) {
		d := PlaylistDecision{
			Winner:     client,
			Resolution: podkeep.ResolutionLocalWins,
			Tombstone:  true,
		}
		if differs {
			d.Conflict = &podkeep.ConflictRecord{
				Type:       podkeep.ConflictTypePlaylist,
				Local:      playlistFields(client),
				Remote:     playlistFields(*server),
				Resolution: podkeep.ResolutionLocalWins,
				Reason:     ReasonTombstone,
			}
		}
		return d
	}

	winner, res := *server, podkeep.ResolutionServerWins
	if client.ClientUpdatedAt.After(server.ClientUpdatedAt) {
		winner, res = client, podkeep.ResolutionLocalWins
	}

	d := PlaylistDecision{Winner: winner, Resolution: res}
	if differs {
		d.Conflict = &podkeep.ConflictRecord{
			Type:       podkeep.ConflictTypePlaylist,
			Local:      playlistFields(client),
			Remote:     playlistFields(*server),
			Resolution: res,
			Reason:     ReasonLastWriteWins,
		}
	}

	return d
}

func subscriptionEqual(a, b podkeep.Subscription) bool {
	return a.SourceID == b.SourceID &&
		timePtrEqual(a.SubscribedAt, b.SubscribedAt) &&
		timePtrEqual(a.UnsubscribedAt, b.UnsubscribedAt)
}

func playlistEqual(a, b podkeep.Playlist) bool {
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.IsPublic == b.IsPublic &&
		timePtrEqual(a.DeletedAt, b.DeletedAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Snapshots of the compared field sets, echoed back to clients inside
// conflict records.

func subscriptionFields(s podkeep.Subscription) map[string]any {
	return map[string]any{
		"feed_id":         s.FeedID,
		"source_id":       s.SourceID,
		"subscribed_at":   s.SubscribedAt,
		"unsubscribed_at": s.UnsubscribedAt,
	}
}

func playFields(p podkeep.PlayPosition) map[string]any {
	return map[string]any{
		"item_id":    p.ItemID,
		"position":   p.Position,
		"played":     p.Played,
		"updated_at": p.ClientUpdatedAt,
	}
}

func playlistFields(p podkeep.Playlist) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"is_public":  p.IsPublic,
		"deleted_at": p.DeletedAt,
		"updated_at": p.ClientUpdatedAt,
	}
}
