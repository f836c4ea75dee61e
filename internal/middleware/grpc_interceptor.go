package middleware

import (
	"context"
	"errors"

	"github.com/mehmetyiter/callguard/internal/breaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCInterceptorConfig configures the gRPC interceptors
type GRPCInterceptorConfig struct {
	// Guard protecting the intercepted calls
	Guard breaker.Guard

	// IsSuccessful determines if an error is considered successful
	// Defaults to: nil error or client-side status codes
	IsSuccessful func(err error) bool
}

// UnaryClientInterceptor returns a gRPC client interceptor that wraps calls
// with call-guard protection
func UnaryClientInterceptor(config GRPCInterceptorConfig) grpc.UnaryClientInterceptor {
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultGRPCIsSuccessful
	}

	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		var callErr error
		err := config.Guard.Execute(func() error {
			callErr = invoker(ctx, method, req, reply, cc, opts...)
			if config.IsSuccessful(callErr) {
				// Client-side errors count as successes for the guard
				// but still reach the caller.
				return nil
			}
			return callErr
		})

		if err != nil {
			return translateGuardError(err)
		}
		return callErr
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor
func StreamClientInterceptor(config GRPCInterceptorConfig) grpc.StreamClientInterceptor {
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultGRPCIsSuccessful
	}

	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		var stream grpc.ClientStream

		var callErr error
		err := config.Guard.Execute(func() error {
			stream, callErr = streamer(ctx, desc, cc, method, opts...)
			if config.IsSuccessful(callErr) {
				return nil
			}
			return callErr
		})

		if err != nil {
			return nil, translateGuardError(err)
		}
		return stream, callErr
	}
}

// UnaryServerInterceptor returns a gRPC server interceptor that sheds
// load while the guard is open
func UnaryServerInterceptor(config GRPCInterceptorConfig) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var resp interface{}
		err := config.Guard.Execute(func() error {
			var err error
			resp, err = handler(ctx, req)
			return err
		})

		if err := translateGuardError(err); err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// translateGuardError converts guard rejections into gRPC status errors,
// leaving operation errors untouched.
func translateGuardError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, breaker.ErrBreakerOpen):
		return status.Error(codes.Unavailable, "call guard is open")
	case errors.Is(err, breaker.ErrPredictiveBlock):
		return status.Error(codes.Unavailable, "call guard preemptively opened")
	default:
		return err
	}
}

// defaultGRPCIsSuccessful considers nil errors and certain codes as successful
func defaultGRPCIsSuccessful(err error) bool {
	if err == nil {
		return true
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	// These codes indicate client errors, not service failures
	switch st.Code() {
	case codes.OK:
		return true
	case codes.Canceled:
		return true // Client cancelled, not a service failure
	case codes.InvalidArgument:
		return true // Client error
	case codes.NotFound:
		return true // Resource not found, not a service failure
	case codes.AlreadyExists:
		return true // Client error
	case codes.PermissionDenied:
		return true // Auth error
	case codes.Unauthenticated:
		return true // Auth error
	default:
		return false // Server errors
	}
}
