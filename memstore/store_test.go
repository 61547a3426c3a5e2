package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/orderdesk_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) (*Store, *models.Product) {
	t.Helper()
	s := New(Options{LockTimeout: 50 * time.Millisecond})
	p := &models.Product{Sku: "A-1", Name: "Anchor", Price: decimal.NewFromInt(10), Stock: 5}
	s.SeedProducts(p)
	return s, p
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	s, p := seeded(t)
	boom := errors.New("boom")

	err := s.WithinTransaction(context.Background(), func(tx models.Tx) error {
		if _, err := tx.LockProducts([]int{p.ID}); err != nil {
			return err
		}
		if err := tx.AdjustStock(p.ID, -3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, s.Stock(p.ID))
}

func TestStockWriteRequiresLock(t *testing.T) {
	s, p := seeded(t)
	err := s.WithinTransaction(context.Background(), func(tx models.Tx) error {
		return tx.AdjustStock(p.ID, 1)
	})
	require.Error(t, err)
	assert.Equal(t, 5, s.Stock(p.ID))
}

func TestLockWaitTimesOut(t *testing.T) {
	s, p := seeded(t)
	locked := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.WithinTransaction(context.Background(), func(tx models.Tx) error {
			if _, err := tx.LockProducts([]int{p.ID}); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	err := s.WithinTransaction(context.Background(), func(tx models.Tx) error {
		_, err := tx.LockProducts([]int{p.ID})
		return err
	})
	close(done)
	require.ErrorIs(t, err, models.ErrLockTimeout)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLockWaiterSeesCommittedStock(t *testing.T) {
	s, p := seeded(t)
	s.lockTimeout = time.Second
	locked := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)

	go func() {
		first <- s.WithinTransaction(context.Background(), func(tx models.Tx) error {
			if _, err := tx.LockProducts([]int{p.ID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return tx.AdjustStock(p.ID, -2)
		})
	}()
	<-locked
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	var seen int
	err := s.WithinTransaction(context.Background(), func(tx models.Tx) error {
		products, err := tx.LockProducts([]int{p.ID})
		if err != nil {
			return err
		}
		seen = products[p.ID].Stock
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-first)
	assert.Equal(t, 3, seen)
}

func TestCommitRejectsDuplicateSku(t *testing.T) {
	s, _ := seeded(t)
	err := s.WithinTransaction(context.Background(), func(tx models.Tx) error {
		return tx.CreateProduct(&models.Product{Sku: "A-1", Name: "Copy"})
	})
	require.ErrorIs(t, err, models.ErrDuplicateSku)

	err = s.WithinTransaction(context.Background(), func(tx models.Tx) error {
		products, err := tx.ListProducts()
		require.NoError(t, err)
		assert.Len(t, products, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestOrderSequencesAreDistinctPerPeriod(t *testing.T) {
	s := New(Options{})
	var got []int64
	for _, period := range []string{"2024-01", "2024-01", "2024-02"} {
		err := s.WithinTransaction(context.Background(), func(tx models.Tx) error {
			n, err := tx.NextOrderSequence(period)
			got = append(got, n)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 1}, got)
}
