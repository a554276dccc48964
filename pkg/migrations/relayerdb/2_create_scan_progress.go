package relayerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/juchain-labs/bridge-relayer/pkg/db/dao"
	mghelper "github.com/juchain-labs/bridge-relayer/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating scan_progress table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.ScanProgress{}); err != nil {
			return err
		}
		return mghelper.CreateUniqueIndexes(ctx, db, "scan_progress", "chain, asset, event_type")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping scan_progress table...")
		return mghelper.DropTables(ctx, db, &dao.ScanProgress{})
	})
}
