package rbac

import (
	"context"
	"log/slog"
)

// Definition declares one protectable operation. The catalog below is the
// universe of valid permissions; it is synced into the store at startup and
// end users never create entries.
type Definition struct {
	Codename  string
	Name      string
	Subsystem string
}

// Catalog lists every protectable operation in the system.
func Catalog() []Definition {
	return []Definition{
		{Codename: "user.view", Name: "View users", Subsystem: "accounts"},
		{Codename: "user.edit", Name: "Edit users", Subsystem: "accounts"},
		{Codename: "user.delete", Name: "Delete users", Subsystem: "accounts"},
		{Codename: "role.view", Name: "View roles", Subsystem: "accounts"},
		{Codename: "role.edit", Name: "Edit roles and hierarchy", Subsystem: "accounts"},
		{Codename: "permission.view", Name: "View permission catalog", Subsystem: "accounts"},
		{Codename: "permission.manage", Name: "Grant and revoke permissions", Subsystem: "accounts"},
		{Codename: "audit.view", Name: "View permission change log", Subsystem: "audit"},
		{Codename: "post.view", Name: "View posts", Subsystem: "content"},
		{Codename: "post.edit", Name: "Edit posts", Subsystem: "content"},
		{Codename: "post.publish", Name: "Publish posts", Subsystem: "content"},
		{Codename: "post.delete", Name: "Delete posts", Subsystem: "content"},
	}
}

// SyncCatalog upserts every catalog definition. Codenames are immutable
// identities; names and subsystem labels follow the current definitions.
// Entries absent from the catalog are left in place so historical audit rows
// keep their references.
func (s *Service) SyncCatalog(ctx context.Context) error {
	defs := Catalog()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, def := range defs {
			if err := tx.UpsertPermission(ctx, def); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("synced permission catalog", slog.Int("definitions", len(defs)))
	}
	return nil
}
