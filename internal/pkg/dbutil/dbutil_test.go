package dbutil

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		query    string
		args     []interface{}
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "postgres rebinds placeholders",
			driver:   "postgres",
			query:    "SELECT id FROM documents WHERE user_id=? AND status=?",
			args:     []interface{}{"u1", "pending"},
			wantSQL:  "SELECT id FROM documents WHERE user_id=$1 AND status=$2",
			wantArgs: []interface{}{"u1", "pending"},
		},
		{
			name:     "limit offset swapped",
			driver:   "postgres",
			query:    "SELECT id FROM documents WHERE user_id=? LIMIT ?,?",
			args:     []interface{}{"u1", 10, 20},
			wantSQL:  "SELECT id FROM documents WHERE user_id=$1 LIMIT $2 OFFSET $3",
			wantArgs: []interface{}{"u1", 20, 10},
		},
		{
			name:     "sqlite keeps question marks",
			driver:   "sqlite",
			query:    "SELECT id FROM documents WHERE user_id=? LIMIT ?,?",
			args:     []interface{}{"u1", 0, 5},
			wantSQL:  "SELECT id FROM documents WHERE user_id=? LIMIT ? OFFSET ?",
			wantArgs: []interface{}{"u1", 5, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := Finalize(tt.driver, tt.query, tt.args)
			require.Equal(t, tt.wantSQL, gotSQL)
			require.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestIsConflict(t *testing.T) {
	require.False(t, IsConflict(nil))
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.True(t, IsConflict(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")))
	require.False(t, IsConflict(errors.New("boom")))
}
