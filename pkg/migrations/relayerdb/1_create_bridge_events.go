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
		log.Println("creating bridge_events table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.BridgeEvent{}); err != nil {
			return err
		}
		if err := mghelper.CreateUniqueIndexes(ctx, db, "bridge_events", "tx_hash"); err != nil {
			return err
		}
		return mghelper.CreateIndexes(ctx, db, "bridge_events", "user_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bridge_events table...")
		return mghelper.DropTables(ctx, db, &dao.BridgeEvent{})
	})
}
