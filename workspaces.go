package quilix

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/quilix/schema"
)

// PutWorkspace stores ws and, in filesystem mode, keeps its folder in step.
// A rename moves the folder.
func (r *Runtime) PutWorkspace(ctx context.Context, ws schema.Workspace) error {
	if err := schema.ValidateWorkspaceID(ws.ID); err != nil {
		return err
	}
	prev, found, err := r.store.GetWorkspace(ctx, ws.ID)
	if err != nil {
		return err
	}
	if ws.Role == "" {
		ws.Role = schema.RoleOwner
	}
	if ws.LastActiveAt == 0 {
		ws.LastActiveAt = schema.NowMillis(time.Now())
	}
	if err := r.store.PutWorkspace(ctx, ws); err != nil {
		return err
	}
	if found && prev.Name != ws.Name {
		r.bridge.RenameWorkspaceFolder(ctx, prev.Name, ws.Name)
	} else {
		r.bridge.CreateWorkspaceFolder(ctx, ws)
	}
	return nil
}

// DeleteWorkspace removes the workspace record and its folder.
func (r *Runtime) DeleteWorkspace(ctx context.Context, id schema.WorkspaceID) error {
	ws, found, err := r.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := r.store.DeleteWorkspace(ctx, id); err != nil {
		return err
	}
	r.bridge.DeleteWorkspaceFolder(ctx, ws)
	return nil
}

// PutSpace stores sp, assigning its folder name on first save, and keeps
// the folder in step. Renaming a space renames its folder.
func (r *Runtime) PutSpace(ctx context.Context, sp schema.Space) (schema.Space, error) {
	ws, found, err := r.store.GetWorkspace(ctx, sp.WorkspaceID)
	if err != nil {
		return schema.Space{}, err
	}
	if !found {
		return schema.Space{}, fmt.Errorf("workspace %s: %w", sp.WorkspaceID, schema.ErrInvalidWorkspace)
	}
	prev, existed, err := r.store.GetSpace(ctx, sp.ID)
	if err != nil {
		return schema.Space{}, err
	}
	sp.FolderName = schema.SanitizeFolderName(sp.Name)
	if err := r.store.PutSpace(ctx, sp); err != nil {
		return schema.Space{}, err
	}
	switch {
	case existed && prev.FolderName != "" && prev.FolderName != sp.FolderName:
		r.bridge.RenameSpaceFolder(ctx, ws, prev.FolderName, sp.FolderName)
	default:
		r.bridge.CreateSpaceFolder(ctx, ws, sp)
	}
	return sp, nil
}

// DeleteSpace removes the space record and its folder.
func (r *Runtime) DeleteSpace(ctx context.Context, id schema.SpaceID) error {
	sp, found, err := r.store.GetSpace(ctx, id)
	if err != nil || !found {
		return err
	}
	if err := r.store.DeleteSpace(ctx, id); err != nil {
		return err
	}
	if ws, ok, err := r.store.GetWorkspace(ctx, sp.WorkspaceID); err == nil && ok {
		r.bridge.DeleteSpaceFolder(ctx, ws, sp)
	}
	return nil
}
