package fsbridge

import (
	"context"
	"errors"

	"pkt.systems/quilix/schema"
)

// WorkspaceFolder returns the directory name of a workspace.
func WorkspaceFolder(ws schema.Workspace) string {
	return schema.SanitizeFolderName(ws.Name)
}

// SpaceFolder returns the directory name of a space.
func SpaceFolder(sp schema.Space) string {
	if sp.FolderName != "" {
		return sp.FolderName
	}
	return schema.SanitizeFolderName(sp.Name)
}

// Folder operations below never prompt and never fail loudly: when the
// handle is not usable they log and report false.

// CreateWorkspaceFolder ensures the folder of ws exists.
func (b *Bridge) CreateWorkspaceFolder(ctx context.Context, ws schema.Workspace) bool {
	root, ok := b.silentRoot(ctx, "create workspace folder")
	if !ok {
		return false
	}
	if _, err := root.Directory(ctx, WorkspaceFolder(ws), true); err != nil {
		b.log.Warn("fs bridge create workspace folder failed", "workspace", ws.ID, "err", err)
		return false
	}
	return true
}

// RenameWorkspaceFolder moves the folder of a renamed workspace.
func (b *Bridge) RenameWorkspaceFolder(ctx context.Context, oldName, newName string) bool {
	root, ok := b.silentRoot(ctx, "rename workspace folder")
	if !ok {
		return false
	}
	return b.move(ctx, root, schema.SanitizeFolderName(oldName), schema.SanitizeFolderName(newName))
}

// DeleteWorkspaceFolder removes the folder of ws. A missing folder counts as deleted.
func (b *Bridge) DeleteWorkspaceFolder(ctx context.Context, ws schema.Workspace) bool {
	root, ok := b.silentRoot(ctx, "delete workspace folder")
	if !ok {
		return false
	}
	return b.remove(ctx, root, WorkspaceFolder(ws))
}

// CreateSpaceFolder ensures the folder of sp exists inside its workspace folder.
func (b *Bridge) CreateSpaceFolder(ctx context.Context, ws schema.Workspace, sp schema.Space) bool {
	root, ok := b.silentRoot(ctx, "create space folder")
	if !ok {
		return false
	}
	wsDir, err := root.Directory(ctx, WorkspaceFolder(ws), true)
	if err != nil {
		b.log.Warn("fs bridge create space folder failed", "space", sp.ID, "err", err)
		return false
	}
	if _, err := wsDir.Directory(ctx, SpaceFolder(sp), true); err != nil {
		b.log.Warn("fs bridge create space folder failed", "space", sp.ID, "err", err)
		return false
	}
	return true
}

// RenameSpaceFolder moves a space folder from oldFolder to newFolder.
func (b *Bridge) RenameSpaceFolder(ctx context.Context, ws schema.Workspace, oldFolder, newFolder string) bool {
	root, ok := b.silentRoot(ctx, "rename space folder")
	if !ok {
		return false
	}
	wsDir, err := root.Directory(ctx, WorkspaceFolder(ws), false)
	if err != nil {
		b.log.Warn("fs bridge rename space folder failed", "workspace", ws.ID, "err", err)
		return false
	}
	return b.move(ctx, wsDir, oldFolder, newFolder)
}

// DeleteSpaceFolder removes the folder of sp. A missing folder counts as deleted.
func (b *Bridge) DeleteSpaceFolder(ctx context.Context, ws schema.Workspace, sp schema.Space) bool {
	root, ok := b.silentRoot(ctx, "delete space folder")
	if !ok {
		return false
	}
	wsDir, err := root.Directory(ctx, WorkspaceFolder(ws), false)
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if err != nil {
		b.log.Warn("fs bridge delete space folder failed", "space", sp.ID, "err", err)
		return false
	}
	return b.remove(ctx, wsDir, SpaceFolder(sp))
}

func (b *Bridge) silentRoot(ctx context.Context, op string) (DirectoryHandle, bool) {
	if b.StorageMode(ctx) != StorageModeFilesystem {
		return nil, false
	}
	root, err := b.Root(ctx)
	if err != nil {
		b.log.Debug("fs bridge skipped", "op", op, "err", err)
		return nil, false
	}
	return root, true
}

func (b *Bridge) move(ctx context.Context, dir DirectoryHandle, from, to string) bool {
	if from == to {
		return true
	}
	if err := dir.Move(ctx, from, to); err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, err = dir.Directory(ctx, to, true); err == nil {
				return true
			}
		}
		b.log.Warn("fs bridge rename failed", "from", from, "to", to, "err", err)
		return false
	}
	return true
}

func (b *Bridge) remove(ctx context.Context, dir DirectoryHandle, name string) bool {
	if err := dir.Remove(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
		b.log.Warn("fs bridge delete failed", "name", name, "err", err)
		return false
	}
	return true
}
