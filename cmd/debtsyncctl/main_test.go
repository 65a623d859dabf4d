package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd_RejectsBadInvocations(t *testing.T) {
	type testCase struct {
		name    string
		args    []string
		wantErr string
	}

	tests := []testCase{
		{name: "MigrateUnknownDirection", args: []string{"migrate", "sideways"}, wantErr: "invalid argument"},
		{name: "MigrateNeedsDirection", args: []string{"migrate"}, wantErr: "accepts 1 arg"},
		{name: "RollbackNeedsDate", args: []string{"rollback"}, wantErr: `"date" not set`},
		{name: "ImportNeedsFile", args: []string{"import"}, wantErr: "accepts 1 arg"},
		{name: "ReconcileBadRep", args: []string{"reconcile", "--rep", "R1"}, wantErr: "invalid representative id"},
		{name: "RollbackBadDate", args: []string{"rollback", "--date", "10/03/2025"}, wantErr: "invalid --date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
