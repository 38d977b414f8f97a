package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsSplitsSchema(t *testing.T) {
	stmts := Statements()
	require.NotEmpty(t, stmts)

	assert.True(t, strings.HasPrefix(stmts[0], "CREATE EXTENSION IF NOT EXISTS btree_gist"))
	for _, s := range stmts {
		assert.NotContains(t, s, ";")
		assert.False(t, strings.HasPrefix(s, "--"), s)
	}

	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, "shows_no_overlap EXCLUDE USING gist")
	assert.Contains(t, joined, "booking_seats_held_uq ON booking_seats (show_id, seat_id) WHERE NOT released")
}
