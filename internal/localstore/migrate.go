package localstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/pslog"
	"pkt.systems/quilix/schema"
)

// LegacyWindowID is assigned to tabs persisted before tabs were scoped to windows.
const LegacyWindowID schema.WindowID = "legacy"

// revision is one step of schema evolution. migrate runs once, inside the
// upgrade transaction that moves the store to version.
type revision struct {
	version int
	buckets [][]byte
	migrate func(tx *bolt.Tx) error
}

var revisions = []revision{
	{version: 1, buckets: [][]byte{bucketWorkspaces, bucketTabs, bucketSettings}},
	{version: 2, buckets: [][]byte{bucketSpaces, bucketSessions}},
	{version: 3, buckets: [][]byte{bucketTabsByWindow}, migrate: backfillTabWindows},
	{version: 4, migrate: backfillSpaceFolders},
	{version: 5, buckets: [][]byte{bucketDurable}},
}

// LatestVersion is the schema version a freshly opened store ends at.
func LatestVersion() int {
	return revisions[len(revisions)-1].version
}

func upgrade(db *bolt.DB, revs []revision, log pslog.Logger) error {
	return db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		current := readVersion(tx)
		for _, rev := range revs {
			if rev.version <= current {
				continue
			}
			for _, name := range rev.buckets {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("schema v%d: %w", rev.version, err)
				}
			}
			if rev.migrate != nil {
				if err := rev.migrate(tx); err != nil {
					return fmt.Errorf("schema v%d migration: %w", rev.version, err)
				}
			}
			if err := writeVersion(tx, rev.version); err != nil {
				return err
			}
			log.Info("local store schema upgraded", "from", current, "to", rev.version)
			current = rev.version
		}
		return nil
	})
}

func readVersion(tx *bolt.Tx) int {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return 0
	}
	raw := b.Get(keySchemaVersion)
	if len(raw) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw))
}

func writeVersion(tx *bolt.Tx, version int) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(version))
	return tx.Bucket(bucketMeta).Put(keySchemaVersion, buf[:])
}

func backfillTabWindows(tx *bolt.Tx) error {
	tabs, err := listJSON[schema.Tab](tx, bucketTabs)
	if err != nil {
		return err
	}
	for _, tab := range tabs {
		if tab.WindowID == "" {
			tab.WindowID = LegacyWindowID
			if err := putJSON(tx, bucketTabs, []byte(tab.ID), tab); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketTabsByWindow).Put(tabIndexKey(tab), nil); err != nil {
			return err
		}
	}
	return nil
}

func backfillSpaceFolders(tx *bolt.Tx) error {
	b := tx.Bucket(bucketSpaces)
	type pending struct {
		key []byte
		raw []byte
	}
	var updates []pending
	err := b.ForEach(func(k, v []byte) error {
		var space schema.Space
		if err := json.Unmarshal(v, &space); err != nil {
			return err
		}
		if space.FolderName != "" {
			return nil
		}
		space.FolderName = schema.SanitizeFolderName(space.Name)
		raw, err := json.Marshal(space)
		if err != nil {
			return err
		}
		updates = append(updates, pending{key: append([]byte(nil), k...), raw: raw})
		return nil
	})
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := b.Put(u.key, u.raw); err != nil {
			return err
		}
	}
	return nil
}
