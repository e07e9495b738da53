package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/store"
)

var (
	// ErrPermissionDenied marks a request refused by AdminOnly.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrWrongContext marks a request refused by PersonalOnly or GroupOnly.
	ErrWrongContext = errors.New("command not available in this context")
)

// adminChecker is the part of the roster AdminOnly needs.
type adminChecker interface {
	IsAdmin(ctx context.Context, chatUserID string) (bool, error)
}

// bindingChecker is the part of the roster BoundOnly needs.
type bindingChecker interface {
	IsBound(ctx context.Context, chatUserID string) (bool, error)
}

// AdminOnly lets the request through only when the sender is an operator.
func AdminOnly(s adminChecker, next Handler) Handler {
	return func(ctx context.Context, req *Request) ([]chat.Message, error) {
		ok, err := s.IsAdmin(ctx, req.Source.ChatUserID)
		if err != nil {
			return nil, fmt.Errorf("admin check: %w", err)
		}
		if !ok {
			req.rejection = ErrPermissionDenied
			return []chat.Message{chat.Text(PermissionDeniedMessage)}, nil
		}
		return next(ctx, req)
	}
}

// PersonalOnly silently drops requests that do not come from a one-to-one chat.
func PersonalOnly(next Handler) Handler {
	return func(ctx context.Context, req *Request) ([]chat.Message, error) {
		if req.Source.Type != chat.Personal {
			req.rejection = ErrWrongContext
			return nil, nil
		}
		return next(ctx, req)
	}
}

// GroupOnly refuses requests sent from a one-to-one chat.
func GroupOnly(next Handler) Handler {
	return func(ctx context.Context, req *Request) ([]chat.Message, error) {
		if req.Source.Type == chat.Personal {
			req.rejection = ErrWrongContext
			return []chat.Message{chat.Text(CommandNotAvailableMessage)}, nil
		}
		return next(ctx, req)
	}
}

// BoundOnly refuses senders that have not bound their chat identity to a name.
func BoundOnly(s bindingChecker, next Handler) Handler {
	return func(ctx context.Context, req *Request) ([]chat.Message, error) {
		ok, err := s.IsBound(ctx, req.Source.ChatUserID)
		if err != nil {
			return nil, fmt.Errorf("binding check: %w", err)
		}
		if !ok {
			req.rejection = store.ErrNotBound
			return []chat.Message{chat.Text(UserNotBoundMessage)}, nil
		}
		return next(ctx, req)
	}
}
