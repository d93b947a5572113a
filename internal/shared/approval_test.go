package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApprovalLogDefaultsZeroTimestamp(t *testing.T) {
	before := time.Now().UTC()
	stamped := ApprovalLog{Module: "challan", Action: ApprovalSubmit}.withDefaults()
	require.False(t, stamped.At.IsZero())
	require.False(t, stamped.At.Before(before))
}

func TestApprovalLogKeepsExplicitTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stamped := ApprovalLog{Module: "challan", Action: ApprovalForward, At: at}.withDefaults()
	require.Equal(t, at, stamped.At)
}
