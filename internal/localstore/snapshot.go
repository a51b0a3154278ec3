package localstore

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/quilix/schema"
)

// MergeStats counts rows upserted by Merge.
type MergeStats struct {
	Workspaces int
	Spaces     int
	Tabs       int
}

// Snapshot reads workspaces, spaces and tabs in one consistent transaction.
func (s *Store) Snapshot(ctx context.Context, now time.Time) (schema.MirrorState, error) {
	state := schema.MirrorState{
		Version:    schema.MirrorVersion,
		ExportedAt: now.UnixMilli(),
		Workspaces: []schema.Workspace{},
		Spaces:     []schema.Space{},
		Tabs:       []schema.Tab{},
	}
	if s.Degraded() {
		return state, schema.ErrStoreUnavailable
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		if state.Workspaces, err = listJSON[schema.Workspace](tx, bucketWorkspaces); err != nil {
			return err
		}
		if state.Spaces, err = listJSON[schema.Space](tx, bucketSpaces); err != nil {
			return err
		}
		state.Tabs, err = listJSON[schema.Tab](tx, bucketTabs)
		return err
	})
	return state, err
}

// Merge upserts every row of state by primary key. Rows absent from state are kept.
func (s *Store) Merge(ctx context.Context, state schema.MirrorState) (MergeStats, error) {
	var stats MergeStats
	err := s.update([]Table{TableWorkspaces, TableSpaces, TableTabs}, func(tx *bolt.Tx) error {
		for _, ws := range state.Workspaces {
			if schema.ValidateWorkspaceID(ws.ID) != nil {
				continue
			}
			if err := putJSON(tx, bucketWorkspaces, []byte(ws.ID), ws); err != nil {
				return err
			}
			stats.Workspaces++
		}
		for _, sp := range state.Spaces {
			if sp.ID == "" {
				continue
			}
			if err := putJSON(tx, bucketSpaces, []byte(sp.ID), sp); err != nil {
				return err
			}
			stats.Spaces++
		}
		for _, tab := range state.Tabs {
			if tab.ID == "" {
				continue
			}
			if tab.WindowID == "" {
				tab.WindowID = LegacyWindowID
			}
			if err := putTabTx(tx, tab); err != nil {
				return err
			}
			stats.Tabs++
		}
		return nil
	})
	return stats, err
}
