package cmd

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"conduit/internal/endpoint"
)

// dialDaemon opens a gRPC connection to conduitd over its named
// endpoint. The endpoint is local, so the transport is plaintext.
func dialDaemon() (*grpc.ClientConn, error) {
	name := cfg.Endpoint

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return endpoint.Dial(ctx, name)
		}),
	}

	return grpc.NewClient("passthrough:///"+name, opts...)
}
