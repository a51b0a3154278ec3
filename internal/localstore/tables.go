package localstore

import (
	"bytes"
	"context"
	"sort"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/quilix/schema"
)

func tabIndexPrefix(workspaceID schema.WorkspaceID, windowID schema.WindowID) []byte {
	key := make([]byte, 0, len(workspaceID)+len(windowID)+2)
	key = append(key, workspaceID...)
	key = append(key, 0)
	key = append(key, windowID...)
	key = append(key, 0)
	return key
}

func tabIndexKey(tab schema.Tab) []byte {
	return append(tabIndexPrefix(tab.WorkspaceID, tab.WindowID), tab.ID...)
}

// SortTabs orders tabs by Order, then CreatedAt, then ID. Duplicate orders
// from concurrent windows therefore sort stably by creation time.
func SortTabs(tabs []schema.Tab) {
	sort.SliceStable(tabs, func(i, j int) bool {
		if tabs[i].Order != tabs[j].Order {
			return tabs[i].Order < tabs[j].Order
		}
		if tabs[i].CreatedAt != tabs[j].CreatedAt {
			return tabs[i].CreatedAt < tabs[j].CreatedAt
		}
		return tabs[i].ID < tabs[j].ID
	})
}

// Workspaces.

// GetWorkspace returns the workspace id and whether it exists.
func (s *Store) GetWorkspace(ctx context.Context, id schema.WorkspaceID) (schema.Workspace, bool, error) {
	var (
		out schema.Workspace
		ok  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, ok, err = getJSON[schema.Workspace](tx, bucketWorkspaces, []byte(id))
		return err
	})
	return out, ok, ignoreDegraded(err)
}

// ListWorkspaces returns every workspace.
func (s *Store) ListWorkspaces(ctx context.Context) ([]schema.Workspace, error) {
	var out []schema.Workspace
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, err = listJSON[schema.Workspace](tx, bucketWorkspaces)
		return err
	})
	return out, ignoreDegraded(err)
}

// PutWorkspace upserts ws.
func (s *Store) PutWorkspace(ctx context.Context, ws schema.Workspace) error {
	return s.PutWorkspaces(ctx, []schema.Workspace{ws})
}

// PutWorkspaces upserts items in one transaction.
func (s *Store) PutWorkspaces(ctx context.Context, items []schema.Workspace) error {
	for _, ws := range items {
		if err := schema.ValidateWorkspaceID(ws.ID); err != nil {
			return err
		}
	}
	return s.update([]Table{TableWorkspaces}, func(tx *bolt.Tx) error {
		for _, ws := range items {
			if err := putJSON(tx, bucketWorkspaces, []byte(ws.ID), ws); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteWorkspace removes workspace id. Removing a missing workspace is not an error.
func (s *Store) DeleteWorkspace(ctx context.Context, id schema.WorkspaceID) error {
	return s.update([]Table{TableWorkspaces}, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkspaces).Delete([]byte(id))
	})
}

// Spaces.

// GetSpace returns the space id and whether it exists.
func (s *Store) GetSpace(ctx context.Context, id schema.SpaceID) (schema.Space, bool, error) {
	var (
		out schema.Space
		ok  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, ok, err = getJSON[schema.Space](tx, bucketSpaces, []byte(id))
		return err
	})
	return out, ok, ignoreDegraded(err)
}

// ListSpaces returns every space.
func (s *Store) ListSpaces(ctx context.Context) ([]schema.Space, error) {
	var out []schema.Space
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, err = listJSON[schema.Space](tx, bucketSpaces)
		return err
	})
	return out, ignoreDegraded(err)
}

// SpacesByWorkspace returns the spaces of a workspace ordered by Order.
func (s *Store) SpacesByWorkspace(ctx context.Context, workspaceID schema.WorkspaceID) ([]schema.Space, error) {
	all, err := s.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Space, 0, len(all))
	for _, sp := range all {
		if sp.WorkspaceID == workspaceID {
			out = append(out, sp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// PutSpace upserts sp.
func (s *Store) PutSpace(ctx context.Context, sp schema.Space) error {
	return s.PutSpaces(ctx, []schema.Space{sp})
}

// PutSpaces upserts items in one transaction.
func (s *Store) PutSpaces(ctx context.Context, items []schema.Space) error {
	return s.update([]Table{TableSpaces}, func(tx *bolt.Tx) error {
		for _, sp := range items {
			if sp.FolderName == "" {
				sp.FolderName = schema.SanitizeFolderName(sp.Name)
			}
			if err := putJSON(tx, bucketSpaces, []byte(sp.ID), sp); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSpace removes space id.
func (s *Store) DeleteSpace(ctx context.Context, id schema.SpaceID) error {
	return s.update([]Table{TableSpaces}, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpaces).Delete([]byte(id))
	})
}

// Tabs.

// GetTab returns tab id and whether it exists.
func (s *Store) GetTab(ctx context.Context, id schema.TabID) (schema.Tab, bool, error) {
	var (
		out schema.Tab
		ok  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, ok, err = getJSON[schema.Tab](tx, bucketTabs, []byte(id))
		return err
	})
	return out, ok, ignoreDegraded(err)
}

// ListTabs returns every tab of every window.
func (s *Store) ListTabs(ctx context.Context) ([]schema.Tab, error) {
	var out []schema.Tab
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, err = listJSON[schema.Tab](tx, bucketTabs)
		return err
	})
	SortTabs(out)
	return out, ignoreDegraded(err)
}

// TabsByWindow returns the tabs of (workspace, window) through the composite index, sorted.
func (s *Store) TabsByWindow(ctx context.Context, workspaceID schema.WorkspaceID, windowID schema.WindowID) ([]schema.Tab, error) {
	out := make([]schema.Tab, 0)
	prefix := tabIndexPrefix(workspaceID, windowID)
	err := s.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTabsByWindow).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := k[len(prefix):]
			tab, ok, err := getJSON[schema.Tab](tx, bucketTabs, id)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, tab)
			}
		}
		return nil
	})
	SortTabs(out)
	return out, ignoreDegraded(err)
}

// TabsByWorkspace returns every tab of a workspace across windows, sorted.
func (s *Store) TabsByWorkspace(ctx context.Context, workspaceID schema.WorkspaceID) ([]schema.Tab, error) {
	all, err := s.ListTabs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Tab, 0, len(all))
	for _, tab := range all {
		if tab.WorkspaceID == workspaceID {
			out = append(out, tab)
		}
	}
	return out, nil
}

// PutTab upserts tab and its window index entry.
func (s *Store) PutTab(ctx context.Context, tab schema.Tab) error {
	return s.PutTabs(ctx, []schema.Tab{tab})
}

// PutTabs writes tabs in one transaction, keeping the window index current.
func (s *Store) PutTabs(ctx context.Context, tabs []schema.Tab) error {
	if len(tabs) == 0 {
		return nil
	}
	return s.update([]Table{TableTabs}, func(tx *bolt.Tx) error {
		for _, tab := range tabs {
			if err := putTabTx(tx, tab); err != nil {
				return err
			}
		}
		return nil
	})
}

func putTabTx(tx *bolt.Tx, tab schema.Tab) error {
	if tab.ID == "" {
		return schema.ErrInvalidRequest
	}
	index := tx.Bucket(bucketTabsByWindow)
	prev, ok, err := getJSON[schema.Tab](tx, bucketTabs, []byte(tab.ID))
	if err != nil {
		return err
	}
	if ok && (prev.WorkspaceID != tab.WorkspaceID || prev.WindowID != tab.WindowID) {
		if err := index.Delete(tabIndexKey(prev)); err != nil {
			return err
		}
	}
	if err := putJSON(tx, bucketTabs, []byte(tab.ID), tab); err != nil {
		return err
	}
	return index.Put(tabIndexKey(tab), nil)
}

// DeleteTab removes a tab. Deleting a missing tab is not an error.
func (s *Store) DeleteTab(ctx context.Context, id schema.TabID) error {
	return s.update([]Table{TableTabs}, func(tx *bolt.Tx) error {
		prev, ok, err := getJSON[schema.Tab](tx, bucketTabs, []byte(id))
		if err != nil || !ok {
			return err
		}
		if err := tx.Bucket(bucketTabsByWindow).Delete(tabIndexKey(prev)); err != nil {
			return err
		}
		return tx.Bucket(bucketTabs).Delete([]byte(id))
	})
}

// Settings.

// GetSetting returns the value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var (
		out schema.Setting
		ok  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, ok, err = getJSON[schema.Setting](tx, bucketSettings, []byte(key))
		return err
	})
	return out.Value, ok, ignoreDegraded(err)
}

// PutSetting stores value under key.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	return s.update([]Table{TableSettings}, func(tx *bolt.Tx) error {
		return putJSON(tx, bucketSettings, []byte(key), schema.Setting{Key: key, Value: value})
	})
}

// DeleteSetting removes key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.update([]Table{TableSettings}, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
}

// ListSettings returns every setting.
func (s *Store) ListSettings(ctx context.Context) ([]schema.Setting, error) {
	var out []schema.Setting
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, err = listJSON[schema.Setting](tx, bucketSettings)
		return err
	})
	return out, ignoreDegraded(err)
}

// Sessions.

// GetSession returns the session record of windowID.
func (s *Store) GetSession(ctx context.Context, windowID schema.WindowID) (schema.SessionRecord, bool, error) {
	var (
		out schema.SessionRecord
		ok  bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, ok, err = getJSON[schema.SessionRecord](tx, bucketSessions, []byte(windowID))
		return err
	})
	return out, ok, ignoreDegraded(err)
}

// PutSession upserts rec.
func (s *Store) PutSession(ctx context.Context, rec schema.SessionRecord) error {
	return s.update([]Table{TableSessions}, func(tx *bolt.Tx) error {
		return putJSON(tx, bucketSessions, []byte(rec.WindowID), rec)
	})
}

// ListSessions returns the record of every window context seen so far.
func (s *Store) ListSessions(ctx context.Context) ([]schema.SessionRecord, error) {
	var out []schema.SessionRecord
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		out, err = listJSON[schema.SessionRecord](tx, bucketSessions)
		return err
	})
	return out, ignoreDegraded(err)
}
