package service

import (
	"testing"

	"github.com/castcle/wallet-engine/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestTransactionTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.TxStatus
		allowed  bool
	}{
		{domain.TxStatusPending, domain.TxStatusVerified, true},
		{domain.TxStatusPending, domain.TxStatusFailed, true},
		{domain.TxStatusPending, domain.TxStatusWithdrawing, true},
		{domain.TxStatusVerified, domain.TxStatusWithdrawing, true},
		{domain.TxStatusVerified, domain.TxStatusPending, false},
		{domain.TxStatusVerified, domain.TxStatusFailed, false},
		{domain.TxStatusFailed, domain.TxStatusVerified, false},
		{domain.TxStatusFailed, domain.TxStatusPending, false},
		{domain.TxStatusWithdrawing, domain.TxStatusVerified, false},
		{domain.TxStatusWithdrawing, domain.TxStatusFailed, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
