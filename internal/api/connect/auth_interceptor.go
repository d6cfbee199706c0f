// Package connect provides the Connect RPC surface of the audio service.
package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/nativeaudio/internal/app/session"
)

const (
	// TokenHeader is the header name for the service authentication token.
	TokenHeader = "X-Audio-Token"
	// OriginHeader identifies the process context a command comes from.
	OriginHeader = "X-Audio-Origin"
	// ChannelHeader names the callback stream a registration is attached to.
	ChannelHeader = "X-Callback-Channel"
)

var errBadToken = errors.New("missing or invalid token")

// tokenInterceptor validates the service token on unary and streaming calls.
// An empty token disables the check.
type tokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates an interceptor that validates tokens
// from request metadata.
func NewTokenInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

func (i *tokenInterceptor) valid(got string) bool {
	if i.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(i.token)) == 1
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			if i.token != "" {
				req.Header().Set(TokenHeader, i.token)
			}
			return next(ctx, req)
		}
		if !i.valid(req.Header().Get(TokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errBadToken)
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.token != "" {
			conn.RequestHeader().Set(TokenHeader, i.token)
		}
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.valid(conn.RequestHeader().Get(TokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, errBadToken)
		}
		return next(ctx, conn)
	}
}

// NewOriginInterceptor carries the caller's origin header into the request context.
func NewOriginInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			if origin := req.Header().Get(OriginHeader); origin != "" {
				ctx = session.WithOrigin(ctx, origin)
			}
			return next(ctx, req)
		}
	}
}
