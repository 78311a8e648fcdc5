package grpcserver

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/garage-keeper/internal/errs"
)

type ctxKey string

const userIDKey ctxKey = "gk.userID"

// WithUserID stores authenticated user ID in context.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches user ID from context.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// AuthUnary authenticates GarageKeeper calls before the handler runs: Sweep
// needs the cron secret, every other method a user token whose subject is
// put into the context. Calls to other services pass through.
func AuthUnary(a *Authenticator) grpc.UnaryServerInterceptor {
	sweep := FullMethod(MethodSweep)
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		switch {
		case info.FullMethod == sweep:
			if err := a.CheckCronSecret(ctx); err != nil {
				if errors.Is(err, errs.ErrLocked) {
					return nil, status.Error(codes.ResourceExhausted, err.Error())
				}
				return nil, status.Error(codes.Unauthenticated, "bad cron secret")
			}
		case strings.HasPrefix(info.FullMethod, prefix):
			id, err := a.UserID(ctx)
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, "no auth")
			}
			ctx = WithUserID(ctx, id)
		}
		return next(ctx, req)
	}
}
