package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	producerAddr = "0x1111111111111111111111111111111111111111"
	consumerAddr = "0x3333333333333333333333333333333333333333"
)

func newConnected(t *testing.T) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger(31337)
	require.NoError(t, l.Connect(context.Background()))
	return l
}

func issue(t *testing.T, l *MemoryLedger, amount int64) *Receipt {
	t.Helper()
	r, err := l.IssueCredit(context.Background(), IssueRequest{
		Producer:       producerAddr,
		SourceType:     "Solar",
		HydrogenAmount: 1000,
		MetadataHash:   "0xabc",
		CreditAmount:   amount,
	})
	require.NoError(t, err)
	return r
}

func TestMemoryLedgerIssueTransferRetire(t *testing.T) {
	ctx := context.Background()
	l := newConnected(t)

	first := issue(t, l, 100)
	assert.Equal(t, int64(0), first.CreditID)
	second := issue(t, l, 5)
	assert.Equal(t, int64(1), second.CreditID)
	assert.Greater(t, second.BlockNumber, first.BlockNumber)

	_, err := l.TransferCredit(ctx, producerAddr, consumerAddr, 0, 40)
	require.NoError(t, err)

	bal, err := l.BalanceOf(ctx, producerAddr, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(60), bal)
	bal, err = l.BalanceOf(ctx, consumerAddr, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)

	_, err = l.RetireCredit(ctx, consumerAddr, 0, 40)
	require.NoError(t, err)
	info, err := l.CreditMetadata(ctx, 0)
	require.NoError(t, err)
	assert.True(t, info.IsRetired)
	assert.Equal(t, consumerAddr, info.RetiredBy)

	total, err := l.TotalCreditsIssued(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ids, err := l.CreditsOf(ctx, consumerAddr, HolderConsumer)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, ids)

	events, err := l.Events(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 4)
	retired, err := l.Events(ctx, EventFilter{Name: EventCreditRetired})
	require.NoError(t, err)
	require.Len(t, retired, 1)
	assert.Equal(t, int64(40), retired[0].Amount)

	issued, err := l.Events(ctx, EventFilter{Name: EventCreditIssued})
	require.NoError(t, err)
	require.Len(t, issued, 2)
	assert.Equal(t, int64(1000), issued[0].HydrogenAmount)
	assert.Zero(t, issued[0].Amount)
}

func TestMemoryLedgerRejectsOverTransfer(t *testing.T) {
	ctx := context.Background()
	l := newConnected(t)
	issue(t, l, 10)

	_, err := l.TransferCredit(ctx, producerAddr, consumerAddr, 0, 11)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	hash := TxHashOf(err)
	require.NotEmpty(t, hash)
	st, err := l.TransactionStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxFailed, st.State)
}

func TestMemoryLedgerFaults(t *testing.T) {
	ctx := context.Background()
	l := newConnected(t)

	l.FailNext(MethodIssue, ErrUnavailable)
	_, err := l.IssueCredit(ctx, IssueRequest{Producer: producerAddr, SourceType: "Wind", HydrogenAmount: 1, MetadataHash: "0x1", CreditAmount: 1})
	assert.ErrorIs(t, err, ErrUnavailable)
	total, _ := l.TotalCreditsIssued(ctx)
	assert.Zero(t, total)

	l.FailNextAfterCommit(MethodIssue, ErrTimeout)
	_, err = l.IssueCredit(ctx, IssueRequest{Producer: producerAddr, SourceType: "Wind", HydrogenAmount: 1, MetadataHash: "0x1", CreditAmount: 1})
	assert.ErrorIs(t, err, ErrTimeout)
	hash := TxHashOf(err)
	require.NotEmpty(t, hash)

	st, err := l.TransactionStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, TxSuccess, st.State)
	total, _ = l.TotalCreditsIssued(ctx)
	assert.Equal(t, int64(1), total)
}

func TestMemoryLedgerDeadlineAndConnection(t *testing.T) {
	l := NewMemoryLedger(1)
	_, err := l.TotalCreditsIssued(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, l.Connect(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err = l.TotalCreditsIssued(ctx)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestMemoryLedgerRolesAndVerify(t *testing.T) {
	ctx := context.Background()
	l := newConnected(t)

	_, err := l.GrantRole(ctx, producerAddr, models.RoleProducer)
	require.NoError(t, err)
	ok, err := l.HasRole(ctx, producerAddr, models.RoleProducer)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.HasRole(ctx, producerAddr, models.RoleRegulator)
	require.NoError(t, err)
	assert.False(t, ok)

	issue(t, l, 1)
	ok, err = l.VerifyCredit(ctx, 0, "0xABC")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.VerifyCredit(ctx, 0, "0xdef")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = l.VerifyCredit(ctx, 99, "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashMetadataIsDeterministic(t *testing.T) {
	m := models.Metadata{ProductionFacility: models.ProductionFacility{Name: "Plant A"}}
	a, err := HashMetadata(m)
	require.NoError(t, err)
	b, err := HashMetadata(m)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 66)

	m.ProductionFacility.Name = "Plant B"
	c, err := HashMetadata(m)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("0xABCDEFabcdef0123456789012345678901234567")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdefabcdef0123456789012345678901234567", addr)

	_, err = NormalizeAddress("ABCDEFabcdef0123456789012345678901234567")
	assert.Error(t, err)
	_, err = NormalizeAddress("0x123")
	assert.Error(t, err)
}
