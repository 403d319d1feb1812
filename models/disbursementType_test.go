package models_test

import (
	"testing"

	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedSystemDisbursementTypesIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	var before int64
	require.NoError(t, db.Model(&models.DisbursementType{}).Count(&before).Error)
	require.NotZero(t, before)

	require.NoError(t, models.MigrateTable(db))
	var after int64
	require.NoError(t, db.Model(&models.DisbursementType{}).Count(&after).Error)
	assert.Equal(t, before, after)

	court, err := models.FindDisbursementTypeByCode(db, "court_fees")
	require.NoError(t, err)
	assert.Equal(t, models.VATRuleNever, court.VATRule)
	assert.True(t, court.VATRate.IsZero())
}

func TestCustomDisbursementTypesAreScopedToTheirOwner(t *testing.T) {
	db := newTestDB(t)
	owner := advocateCtx("adv-1")
	other := advocateCtx("adv-2")

	custom, err := models.CreateDisbursementType(owner, db, models.NewDisbursementType{
		Name: "Transcripts", Category: "court", VATRule: models.VATRuleSuggest, VATRate: decimal.RequireFromString("0.15"),
	})
	require.NoError(t, err)

	_, err = models.GetDisbursementTypeForCaller(other, db, custom.ID)
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))

	ownerList, err := models.ListDisbursementTypes(owner, db)
	require.NoError(t, err)
	otherList, err := models.ListDisbursementTypes(other, db)
	require.NoError(t, err)
	assert.Len(t, ownerList, len(otherList)+1)
	assert.True(t, ownerList[0].IsSystemDefault)

	updated, err := models.UpdateDisbursementType(owner, db, custom.ID, models.NewDisbursementType{
		Name: "Transcripts", Category: "court", VATRule: models.VATRuleNever, VATRate: decimal.RequireFromString("0.15"),
	})
	require.NoError(t, err)
	assert.True(t, updated.VATRate.IsZero())

	_, err = models.DeleteDisbursementType(owner, db, custom.ID)
	require.NoError(t, err)
	_, err = models.GetDisbursementTypeForCaller(owner, db, custom.ID)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}

func TestSystemDisbursementTypesAreReadOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := advocateCtx("adv-1")
	court, err := models.FindDisbursementTypeByCode(db, "court_fees")
	require.NoError(t, err)

	_, err = models.UpdateDisbursementType(ctx, db, court.ID, models.NewDisbursementType{
		Name: "Court fees", Category: "court", VATRule: models.VATRuleAlways,
	})
	assert.True(t, utils.IsKind(err, utils.KindCompliance))

	_, err = models.DeleteDisbursementType(ctx, db, court.ID)
	assert.True(t, utils.IsKind(err, utils.KindCompliance))
}
