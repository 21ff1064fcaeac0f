package grpc

import (
	"context"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/gate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// publicMethods are served without a credential.
var publicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/List":  true,
	"/grpc.health.v1.Health/Watch": true,
}

// headersFromMetadata turns incoming metadata into gate headers, keeping
// the first value of each key.
func headersFromMetadata(ctx context.Context) gate.Headers {
	h := gate.Headers{}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return h
	}
	for k, v := range md {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}

// authInterceptor applies the auth gate to every non-public unary call and
// hands the principal to the handler through the context.
func (s *GRPCServer) authInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	p, err := s.gate.Authenticate(ctx, headersFromMetadata(ctx))
	if err != nil {
		return nil, status.Error(codeFor(err), common.Message(err))
	}
	return handler(auth.ContextWithPrincipal(ctx, p), req)
}

// metricsInterceptor counts every unary call by method and status code.
func (s *GRPCServer) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordGRPCRequest(info.FullMethod, status.Code(err).String())
	}
	return resp, err
}

// codeFor maps a failure to its gRPC status code.
func codeFor(err error) codes.Code {
	switch common.KindOf(err) {
	case common.KindValidation, common.KindInvalidIdentifier, common.KindCheckDigitMismatch:
		return codes.InvalidArgument
	case common.KindMissingCredential, common.KindMalformedCredential, common.KindExpired,
		common.KindSignatureInvalid, common.KindTokenMismatch, common.KindUserNotFound:
		return codes.Unauthenticated
	case common.KindForbidden:
		return codes.PermissionDenied
	case common.KindNotFound:
		return codes.NotFound
	case common.KindDuplicateTenant:
		return codes.AlreadyExists
	case common.KindStorageUnavailable, common.KindKeySetUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
