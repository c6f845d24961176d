package auth

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delays(t *testing.T) {
	tests := map[string]struct {
		policy retryPolicy
		want   []time.Duration
	}{
		"default policy": {
			policy: retryPolicy{maxRetries: 3, baseDelay: time.Second, maxDelay: 30 * time.Second},
			want:   []time.Duration{time.Second, 2 * time.Second},
		},
		"capped": {
			policy: retryPolicy{maxRetries: 5, baseDelay: 10 * time.Second, maxDelay: 15 * time.Second},
			want:   []time.Duration{10 * time.Second, 15 * time.Second, 15 * time.Second, 15 * time.Second},
		},
		"single attempt": {
			policy: retryPolicy{maxRetries: 1, baseDelay: time.Second, maxDelay: time.Second},
			want:   nil,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b := tc.policy.backOff(context.Background(), clock.NewMock())

			var got []time.Duration
			for d := b.NextBackOff(); d != backoff.Stop; d = b.NextBackOff() {
				got = append(got, d)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
