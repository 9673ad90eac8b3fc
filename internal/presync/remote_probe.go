package presync

import (
	"context"
	"fmt"

	"github.com/tunetrees/sync/internal/remote"
)

// remoteMembershipGenres computes X (spec.md §4.9 step 2) from the
// remote when local has no memberships yet — the one cold-start RPC
// issued during an initial sync, since a brand-new device cannot derive
// X from an empty local store.
func (b *Builder) remoteMembershipGenres(ctx context.Context, userID string) ([]string, error) {
	resp, err := b.Client.Pull(ctx, remote.PullRequest{
		UserID: userID,
		Tables: []remote.PullTableRequest{{
			Name:   "membership_genres",
			Rule:   "sync_get_user_membership_genres",
			Limit:  10000,
			Params: map[string]any{"userId": userID},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("presync: remote membership genre probe: %w", err)
	}
	if len(resp.Tables) == 0 {
		return nil, nil
	}
	var out []string
	for _, row := range resp.Tables[0].Rows {
		if g, ok := row["genre"].(string); ok {
			out = append(out, g)
		}
	}
	return out, nil
}
