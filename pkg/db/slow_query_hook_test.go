package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1 FROM tasks", truncateSQL("  SELECT 1\n\t  FROM tasks "))

	long := "SELECT " + strings.Repeat("x", 300)
	got := truncateSQL(long)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "update", operationOf("\n UPDATE tasks SET x = 1"))
	assert.Equal(t, "unknown", operationOf("   "))
}
