package models_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory store with the billing schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return db
}

func advocateCtx(advocateId string) context.Context {
	ctx := utils.SetAdvocateIdInContext(context.Background(), advocateId)
	return utils.SetActorNameInContext(ctx, "Adv "+advocateId)
}
