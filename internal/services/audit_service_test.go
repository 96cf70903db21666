package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditCreditsAndVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	producer := f.user(t, 1, models.RoleProducer)
	certifier := f.user(t, 2, models.RoleCertifier)
	consumer := f.user(t, 3, models.RoleConsumer)
	regulator := f.user(t, 4, models.RoleRegulator)
	solar := f.issue(t, certifier, producer, 100)

	wind := issueRequest(producer, 30)
	wind.RenewableSourceType = "Wind"
	_, err := f.credits.IssueCredit(ctx, certifier, wind)
	require.NoError(t, err)

	page := repository.Page{Number: 1, Size: 20}
	_, _, err = f.audit.ListCredits(ctx, consumer, AuditCreditQuery{}, page)
	assert.ErrorIs(t, err, ErrForbiddenRole)

	credits, total, err := f.audit.ListCredits(ctx, regulator, AuditCreditQuery{SourceType: "wind"}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, credits, 1)
	assert.Equal(t, models.SourceWind, credits[0].SourceType)

	_, total, err = f.audit.ListCredits(ctx, certifier, AuditCreditQuery{Producer: producer.ID.String(), Status: "ISSUED"}, page)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, _, err = f.audit.ListCredits(ctx, regulator, AuditCreditQuery{Status: "lost", Certifier: "x"}, page)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Len(t, svcErr.Details, 2)

	before, err := f.audit.Statistics(ctx, regulator)
	require.NoError(t, err)
	assert.Equal(t, int64(2), before.Overview.TotalCredits)
	assert.Equal(t, int64(130), before.Overview.TotalCreditAmount)
	assert.Zero(t, before.Overview.VerifiedCredits)
	assert.Len(t, before.BySourceType, 2)

	verified, err := f.audit.SetVerification(ctx, certifier, solar.ID, &dto.VerifyCreditRequest{
		IsVerified:        ptr(true),
		VerificationNotes: "site visit",
	})
	require.NoError(t, err)
	assert.True(t, verified.VerificationStatus.IsVerified)
	require.NotNil(t, verified.VerificationStatus.VerifiedBy)
	assert.Equal(t, certifier.ID, *verified.VerificationStatus.VerifiedBy)
	assert.Equal(t, solar.CurrentBalance, verified.CurrentBalance)
	assert.Equal(t, solar.CurrentOwnerID, verified.CurrentOwnerID)

	after, err := f.audit.Statistics(ctx, regulator)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Overview.VerifiedCredits)

	_, err = f.audit.SetVerification(ctx, consumer, solar.ID, &dto.VerifyCreditRequest{IsVerified: ptr(false)})
	assert.ErrorIs(t, err, ErrForbiddenRole)
	_, err = f.audit.SetVerification(ctx, regulator, uuid.New(), &dto.VerifyCreditRequest{IsVerified: ptr(false)})
	assert.ErrorIs(t, err, ErrCreditNotFound)
	_, err = f.audit.SetVerification(ctx, regulator, solar.ID, &dto.VerifyCreditRequest{})
	assert.Equal(t, KindValidation, KindOf(err))

	audit, err := f.audit.GetCreditAudit(ctx, regulator, solar.ID)
	require.NoError(t, err)
	assert.Equal(t, "site visit", audit.VerificationStatus.VerificationNotes)
}

func TestAuditUsersAndOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	producer := f.user(t, 1, models.RoleProducer)
	certifier := f.user(t, 2, models.RoleCertifier)
	f.user(t, 3, models.RoleConsumer)
	f.user(t, 4, models.RoleConsumer)
	regulator := f.user(t, 5, models.RoleRegulator)
	f.issue(t, certifier, producer, 10)

	_, err := f.audit.ListUsers(ctx, certifier, "", "", repository.Page{Number: 1, Size: 20})
	assert.ErrorIs(t, err, ErrForbiddenRole)

	users, err := f.audit.ListUsers(ctx, regulator, "consumer", "false", repository.Page{Number: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(2), users.Total)
	assert.Len(t, users.Users, 2)
	assert.Len(t, users.RoleStats, 4)

	_, err = f.audit.ListUsers(ctx, regulator, "", "maybe", repository.Page{Number: 1, Size: 20})
	assert.Equal(t, KindValidation, KindOf(err))

	ops, total, err := f.audit.ListOperations(ctx, regulator, "CONFIRMED", "ISSUE", repository.Page{Number: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, ops, 1)
	assert.Equal(t, producer.ID, mustPayload(t, ops[0]).ProducerID)

	_, _, err = f.audit.ListOperations(ctx, regulator, "DONE", "", repository.Page{Number: 1, Size: 20})
	assert.Equal(t, KindValidation, KindOf(err))
	_, _, err = f.audit.ListOperations(ctx, certifier, "", "", repository.Page{Number: 1, Size: 20})
	assert.ErrorIs(t, err, ErrForbiddenRole)

	events, err := f.audit.LedgerEvents(ctx, certifier, "", "0", "latest")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventCreditIssued, events[0].Name)

	_, err = f.audit.LedgerEvents(ctx, certifier, "CreditBurned", "", "")
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.audit.LedgerEvents(ctx, certifier, "", "10", "2")
	assert.Equal(t, KindValidation, KindOf(err))
}

func mustPayload(t *testing.T, op models.LedgerOperation) models.IssuePayload {
	t.Helper()
	var p models.IssuePayload
	require.NoError(t, json.Unmarshal(op.Payload, &p))
	return p
}
