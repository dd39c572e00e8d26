package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Sync pulls the full device inventory into the local snapshot table.
func (a *App) Sync(ctx context.Context) error {
	if !a.Config.Inventory.Configured() {
		return errors.New("inventory credentials not configured; set inventory.client_id, inventory.key_id, and a private key")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot store device snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)
	stats, err := svc.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "synced %d devices across %d pages\n", stats.Devices, stats.Pages)
	return nil
}
