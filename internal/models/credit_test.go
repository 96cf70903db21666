package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(role Role, wallet string) *User {
	return &User{ID: uuid.New(), Role: role, WalletAddress: wallet, IsActive: true}
}

func TestCreditLifecycle(t *testing.T) {
	producer := testUser(RoleProducer, "0x1111111111111111111111111111111111111111")
	certifier := testUser(RoleCertifier, "0x2222222222222222222222222222222222222222")
	consumer := testUser(RoleConsumer, "0x3333333333333333333333333333333333333333")
	at := time.Now()

	c := NewIssuedCredit(0, "0xissue", producer, certifier, SourceSolar, 100, 100, "0xhash", Metadata{}, at)
	assert.Equal(t, StatusIssued, c.Status)
	assert.Equal(t, int64(100), c.CurrentBalance)
	assert.Equal(t, int64(100), c.BalanceOf(producer.WalletAddress))
	require.Len(t, c.OwnershipHistory, 1)

	c.ApplyTransfer(consumer, 40, "0xtransfer", at)
	assert.Equal(t, StatusTransferred, c.Status)
	assert.Equal(t, consumer.ID, c.CurrentOwnerID)
	assert.Equal(t, int64(40), c.CurrentBalance)
	assert.Equal(t, int64(60), c.BalanceOf(producer.WalletAddress))
	require.Len(t, c.OwnershipHistory, 2)
	assert.True(t, c.OwnershipHistory[1].Timestamp.After(c.OwnershipHistory[0].Timestamp))
	assert.Equal(t, c.CurrentBalance, c.OwnershipHistory[1].Amount)

	c.ApplyRetire(consumer.ID, 40, "offset", "0xretire", at)
	assert.True(t, c.IsRetired)
	assert.Equal(t, StatusRetired, c.Status)
	assert.Zero(t, c.CurrentBalance)
	assert.Zero(t, c.BalanceOf(consumer.WalletAddress))
	require.Len(t, c.OwnershipHistory, 3)
	assert.Equal(t, HistoryRetire, c.OwnershipHistory[2].Type)
	assert.Zero(t, c.OwnershipHistory[2].Amount)
	assert.Equal(t, "0xretire", c.RetirementDetails.TxHash)
	assert.True(t, c.HasTransaction("0xTRANSFER"))
}

func TestCloneDoesNotShareHistory(t *testing.T) {
	producer := testUser(RoleProducer, "0x1111111111111111111111111111111111111111")
	c := NewIssuedCredit(1, "0xa", producer, producer, SourceWind, 5, 5, "0xh", Metadata{}, time.Now())

	cp := c.Clone()
	cp.ApplyTransfer(testUser(RoleConsumer, "0x4444444444444444444444444444444444444444"), 5, "0xb", time.Now())

	assert.Len(t, c.OwnershipHistory, 1)
	assert.Equal(t, int64(5), c.CurrentBalance)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("regulator")
	require.NoError(t, err)
	assert.Equal(t, RoleRegulator, r)
	assert.Equal(t, "REGULATOR_ROLE", r.LedgerName())

	_, err = ParseRole("admin")
	assert.Error(t, err)
}
