package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(loginAttempts.WithLabelValues("success"))
	CountLogin("success")
	after := testutil.ToFloat64(loginAttempts.WithLabelValues("success"))
	if after != before+1 {
		t.Fatalf("login counter not incremented: %v -> %v", before, after)
	}

	before = testutil.ToFloat64(lockouts)
	CountLockout()
	if got := testutil.ToFloat64(lockouts); got != before+1 {
		t.Fatalf("lockout counter not incremented: %v -> %v", before, got)
	}

	before = testutil.ToFloat64(decryptFailures)
	CountDecryptFailure()
	if got := testutil.ToFloat64(decryptFailures); got != before+1 {
		t.Fatalf("decrypt failure counter not incremented: %v -> %v", before, got)
	}
}
