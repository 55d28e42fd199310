package otel

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMQHeaderCarrier(t *testing.T) {
	c := MQHeaderCarrier{"x-retry": int64(3)}
	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("x-retry"))
	assert.Equal(t, "", c.Get("missing"))

	keys := c.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"traceparent", "x-retry"}, keys)
}
