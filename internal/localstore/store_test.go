package localstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/quilix/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "quilix.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenAppliesAllRevisions(t *testing.T) {
	store := openTestStore(t)
	version, err := store.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != LatestVersion() {
		t.Fatalf("expected version %d, got %d", LatestVersion(), version)
	}
}

func TestTabsByWindowUsesCompositeIndex(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tabs := []schema.Tab{
		{ID: "t3", WorkspaceID: "acme", WindowID: "w1", Route: "/c", Order: 2},
		{ID: "t1", WorkspaceID: "acme", WindowID: "w1", Route: "/a", Order: 0},
		{ID: "t2", WorkspaceID: "acme", WindowID: "w2", Route: "/b", Order: 1},
		{ID: "t4", WorkspaceID: "other", WindowID: "w1", Route: "/d", Order: 1},
	}
	if err := store.PutTabs(ctx, tabs); err != nil {
		t.Fatalf("put tabs: %v", err)
	}
	got, err := store.TabsByWindow(ctx, "acme", "w1")
	if err != nil {
		t.Fatalf("tabs by window: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t3" {
		t.Fatalf("unexpected tabs: %+v", got)
	}

	moved := tabs[0]
	moved.WindowID = "w2"
	if err := store.PutTab(ctx, moved); err != nil {
		t.Fatalf("move tab: %v", err)
	}
	got, _ = store.TabsByWindow(ctx, "acme", "w1")
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("expected moved tab to leave w1 index, got %+v", got)
	}
	got, _ = store.TabsByWindow(ctx, "acme", "w2")
	if len(got) != 2 {
		t.Fatalf("expected 2 tabs in w2, got %+v", got)
	}

	if err := store.DeleteTab(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteTab(ctx, "t1"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	got, _ = store.TabsByWindow(ctx, "acme", "w1")
	if len(got) != 0 {
		t.Fatalf("expected empty w1, got %+v", got)
	}
}

func TestSortTabsBreaksOrderTiesByCreation(t *testing.T) {
	tabs := []schema.Tab{
		{ID: "b", Order: 1, CreatedAt: 20},
		{ID: "a", Order: 1, CreatedAt: 10},
		{ID: "c", Order: 0, CreatedAt: 30},
	}
	SortTabs(tabs)
	if tabs[0].ID != "c" || tabs[1].ID != "a" || tabs[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", tabs)
	}
}

func TestSettingsAndDurable(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	if err := store.PutSetting(ctx, "activeTab:acme:w1", "t1"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	value, ok, err := store.GetSetting(ctx, "activeTab:acme:w1")
	if err != nil || !ok || value != "t1" {
		t.Fatalf("unexpected setting %q ok=%v err=%v", value, ok, err)
	}
	durable := store.Durable()
	if err := durable.Set(ctx, "quilix.lastRoute", "/notes"); err != nil {
		t.Fatalf("durable set: %v", err)
	}
	if v, ok, _ := durable.Get(ctx, "quilix.lastRoute"); !ok || v != "/notes" {
		t.Fatalf("unexpected durable value %q", v)
	}
	if err := durable.Remove(ctx, "quilix.lastRoute"); err != nil {
		t.Fatalf("durable remove: %v", err)
	}
	if _, ok, _ := durable.Get(ctx, "quilix.lastRoute"); ok {
		t.Fatalf("expected durable key removed")
	}
}

func TestMigrationsBackfillOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quilix.db")
	old, err := openWithRevisions(path, nil, revisions[:2])
	if err != nil {
		t.Fatalf("open v2: %v", err)
	}
	err = old.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketTabs).Put([]byte("t1"), []byte(`{"id":"t1","workspaceId":"acme","route":"/home","order":0}`)); err != nil {
			return err
		}
		return tx.Bucket(bucketSpaces).Put([]byte("s1"), []byte(`{"id":"s1","workspaceId":"acme","name":"Q3 / Plans","order":0}`))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := old.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	tabs, err := store.TabsByWindow(ctx, "acme", LegacyWindowID)
	if err != nil {
		t.Fatalf("tabs by window: %v", err)
	}
	if len(tabs) != 1 || tabs[0].WindowID != LegacyWindowID {
		t.Fatalf("expected backfilled legacy tab, got %+v", tabs)
	}
	space, ok, err := store.GetSpace(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("get space: ok=%v err=%v", ok, err)
	}
	if space.FolderName != "Q3 - Plans" {
		t.Fatalf("expected folder backfill, got %q", space.FolderName)
	}

	// A rewritten folder name must survive reopening: migrations run once.
	space.FolderName = "custom"
	if err := store.PutSpace(ctx, space); err != nil {
		t.Fatalf("put space: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	again, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen again: %v", err)
	}
	defer again.Close()
	space, _, _ = again.GetSpace(ctx, "s1")
	if space.FolderName != "custom" {
		t.Fatalf("migration re-ran, folder is %q", space.FolderName)
	}
}

func TestDegradedStoreToleratesReads(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	store := OpenOrDegraded(filepath.Join(blocker, "quilix.db"), nil)
	if !store.Degraded() {
		t.Fatalf("expected degraded store")
	}
	tabs, err := store.TabsByWindow(ctx, "acme", "w1")
	if err != nil || len(tabs) != 0 {
		t.Fatalf("expected empty read, got %v err=%v", tabs, err)
	}
	if _, ok, err := store.GetSetting(ctx, "k"); ok || err != nil {
		t.Fatalf("expected absent setting, ok=%v err=%v", ok, err)
	}
	if err := store.PutTab(ctx, schema.Tab{ID: "t1"}); !errors.Is(err, schema.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestWatchCoalescesAndFilters(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	changes, cancel := store.Watch(TableTabs, TableSpaces)
	defer cancel()

	if err := store.PutSetting(ctx, "k", "v"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	select {
	case <-changes:
		t.Fatalf("settings write must not notify a tabs watcher")
	default:
	}

	for i := 0; i < 5; i++ {
		if err := store.PutTab(ctx, schema.Tab{ID: "t1", WorkspaceID: "acme", WindowID: "w1", Order: i}); err != nil {
			t.Fatalf("put tab: %v", err)
		}
	}
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatalf("expected a change notification")
	}
	select {
	case <-changes:
		t.Fatalf("expected burst to coalesce into one notification")
	default:
	}
}

func TestSnapshotMergeRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestStore(t)
	trashed := int64(42)
	if err := src.PutWorkspaces(ctx, []schema.Workspace{
		{ID: "acme", Name: "Acme", Role: schema.RoleOwner, LastActiveAt: 1},
		{ID: "old", Name: "Old", Role: schema.RoleMember, TrashedAt: &trashed},
	}); err != nil {
		t.Fatalf("put workspaces: %v", err)
	}
	if err := src.PutSpace(ctx, schema.Space{ID: "s1", WorkspaceID: "acme", Name: "Plans", FolderName: "Plans", Order: 0}); err != nil {
		t.Fatalf("put space: %v", err)
	}
	if err := src.PutTabs(ctx, []schema.Tab{
		{ID: "t1", WorkspaceID: "acme", WindowID: "w1", Label: "Home", Icon: "home", Route: "/home", Order: 0, CreatedAt: 5},
		{ID: "t2", WorkspaceID: "acme", WindowID: "w2", Label: "Notes", Icon: "note", Route: "/notes", Order: 1, CreatedAt: 6},
	}); err != nil {
		t.Fatalf("put tabs: %v", err)
	}
	now := time.UnixMilli(1700000000000)
	state, err := src.Snapshot(ctx, now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	dst := openTestStore(t)
	stats, err := dst.Merge(ctx, state)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stats.Workspaces != 2 || stats.Spaces != 1 || stats.Tabs != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	got, err := dst.Snapshot(ctx, now)
	if err != nil {
		t.Fatalf("snapshot dst: %v", err)
	}
	if !reflect.DeepEqual(state, got) {
		t.Fatalf("round trip mismatch:\nwant: %+v\ngot:  %+v", state, got)
	}
	tabs, _ := dst.TabsByWindow(ctx, "acme", "w2")
	if len(tabs) != 1 || tabs[0].ID != "t2" {
		t.Fatalf("expected merged tabs to be indexed, got %+v", tabs)
	}
}
