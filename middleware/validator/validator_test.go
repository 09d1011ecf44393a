package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/ai-groupchat/message"
	"github.com/sweetpotato0/ai-groupchat/middleware"
)

func TestEnvelopeValidator(t *testing.T) {
	msg := message.From("Code_Runner", message.RoleUser, "exitcode: 0")

	tests := []struct {
		name     string
		ctx      *middleware.Context
		wantErr  error
		wantNext bool
	}{
		{
			name:     "valid envelope passes through",
			ctx:      middleware.NewContext(context.Background(), "Code_Runner", "chat_manager", msg),
			wantNext: true,
		},
		{
			name:    "missing message",
			ctx:     middleware.NewContext(context.Background(), "Code_Runner", "chat_manager", nil),
			wantErr: middleware.ErrInvalidMessage,
		},
		{
			name:    "missing recipient",
			ctx:     middleware.NewContext(context.Background(), "Code_Runner", "", msg),
			wantErr: middleware.ErrInvalidContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executed := false
			err := NewEnvelopeValidator().Execute(tt.ctx, func(*middleware.Context) error {
				executed = true
				return nil
			})
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if executed != tt.wantNext {
				t.Errorf("next executed = %v, want %v", executed, tt.wantNext)
			}
		})
	}
}
