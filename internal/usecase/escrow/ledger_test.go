package escrow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/domain/entity"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

func fixedClock() time.Time {
	return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
}

func TestLedger_ReserveAndSettle(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewLedgerRepository(), fixedClock)
	subject, buyer, seller := uuid.New(), uuid.New(), uuid.New()
	price := valueobject.Money{Amount: 10000, Currency: "USD"}

	_, err := ledger.Reserve(ctx, valueobject.SubjectKindOrder, subject, buyer, price)
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, valueobject.SubjectKindOrder, subject, buyer, price)
	assert.True(t, apperror.IsConflict(err))

	res, err := ledger.Settle(ctx, subject, entity.FullPayout(seller, price), "release")
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusSettled, res.Status)

	_, err = ledger.Settle(ctx, subject, entity.FullRefund(buyer, price), "refund")
	assert.ErrorIs(t, err, apperror.ErrAlreadySettled)

	stored, err := ledger.GetReservation(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, seller, stored.Parts[0].To)
}

func TestLedger_SettleUnknownSubject(t *testing.T) {
	ledger := NewLedger(memory.NewLedgerRepository(), fixedClock)
	_, err := ledger.Settle(context.Background(), uuid.New(), nil, "release")
	assert.True(t, apperror.IsNotFound(err))
}

func TestLedger_ConcurrentSettleSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.NewLedgerRepository(), fixedClock)
	subject, buyer := uuid.New(), uuid.New()
	price := valueobject.Money{Amount: 777}
	_, err := ledger.Reserve(ctx, valueobject.SubjectKindOrder, subject, buyer, price)
	require.NoError(t, err)

	var settled int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Settle(ctx, subject, entity.FullRefund(buyer, price), "refund"); err == nil {
				atomic.AddInt32(&settled, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), settled)
}
