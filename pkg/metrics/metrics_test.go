package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetState(t *testing.T) {
	all := []string{"idle", "live", "reviewing"}
	SetState(all, "live")
	assert.Equal(t, 0.0, testutil.ToFloat64(State.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(State.WithLabelValues("live")))

	SetState(all, "reviewing")
	assert.Equal(t, 0.0, testutil.ToFloat64(State.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(State.WithLabelValues("reviewing")))
}
