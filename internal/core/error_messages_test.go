package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "table not found through Error wrapper",
			err:      newError("lookup", ErrTableNotFound, "id %s", "abc"),
			wantCode: "TBL001",
		},
		{
			name:     "duplicate id",
			err:      newError("register", ErrDuplicateID, ""),
			wantCode: "TBL002",
		},
		{
			name:     "type mismatch wrapped twice",
			err:      fmt.Errorf("insert: %w", fmt.Errorf("column 0: %w", ErrTypeMismatch)),
			wantCode: "ROW003",
		},
		{
			name:     "start beyond data",
			err:      newError("read", ErrStartBeyondData, "start 9, size 3"),
			wantCode: "QRY002",
		},
		{
			name:     "charset error wins over unreadable",
			err:      fmt.Errorf("%w: unsupported charset \"x\"", ErrFileUnreadable),
			wantCode: "FILE005",
		},
		{
			name:     "unreadable file",
			err:      fmt.Errorf("%w: open /x.csv: file does not exist", ErrFileUnreadable),
			wantCode: "FILE001",
		},
		{
			name:     "path outside data dir",
			err:      newError("path", ErrPathOutsideDataDir, "/etc/passwd is not under /data"),
			wantCode: "FILE006",
		},
		{
			name:     "busy",
			err:      ErrTooManyLoads,
			wantCode: "LOAD001",
		},
		{
			name:     "context cancelled",
			err:      fmt.Errorf("acquire: %w", context.Canceled),
			wantCode: "LOAD002",
		},
		{
			name:     "rate limit by text",
			err:      errors.New("rate limit exceeded"),
			wantCode: "RATE001",
		},
		{
			name:     "unknown error falls back",
			err:      errors.New("something strange"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, MapError(tt.err).Code)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(newError("lookup", ErrTableNotFound, ""))
	assert.Equal(t, "Table not found (Code: TBL001). The table may have expired. Load the file again", got)
	assert.Empty(t, FormatUserError(nil))
}

func TestIsUserFacing(t *testing.T) {
	assert.True(t, IsUserFacing(ErrLineOutOfRange))
	assert.False(t, IsUserFacing(errors.New("boom")))
	assert.False(t, IsUserFacing(nil))
}

func TestNewUserError(t *testing.T) {
	assert.Nil(t, NewUserError(nil))

	ue := NewUserError(newError("delete", ErrLineOutOfRange, "line 5 of 3"))
	assert.Equal(t, "ROW001", ue.User.Code)
	assert.Equal(t, "Line number is out of range", ue.Error())
	assert.ErrorIs(t, ue, ErrLineOutOfRange)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{newError("lookup", ErrTableNotFound, ""), KindNotFound},
		{newError("register", ErrDuplicateID, ""), KindConflict},
		{newError("insert", ErrTypeMismatch, ""), KindClient},
		{newError("write", ErrWriteFailed, ""), KindInternal},
		{ErrTooManyLoads, KindUnavailable},
		{context.DeadlineExceeded, KindUnavailable},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := newError("load", ErrTypeMismatch, "file %s line %d column %d: cannot parse %q as %s", "a.csv", 3, 1, "x", TypeInt)
	assert.Equal(t, `load: type mismatch: file a.csv line 3 column 1: cannot parse "x" as int`, err.Error())
}
