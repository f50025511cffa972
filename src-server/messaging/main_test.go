package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"confdesk/src-server/model"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	bundb := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bundb.Close() })
	if err := model.CreateSchema(context.Background(), bundb); err != nil {
		t.Fatal(err)
	}
	return bundb
}
