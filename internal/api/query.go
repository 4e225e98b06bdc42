package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name of the query API.
const ServiceName = "rhoci.v1.Query"

// QueryServer is implemented by the read-side query service.
type QueryServer interface {
	ListBuilds(context.Context, *ListBuildsRequest) (*ListBuildsResponse, error)
	GetBuildTests(context.Context, *BuildRequest) (*GetBuildTestsResponse, error)
	ListFailureMatches(context.Context, *BuildRequest) (*ListFailureMatchesResponse, error)
	TopFailingTests(context.Context, *TopFailingTestsRequest) (*TopFailingTestsResponse, error)
	ListUniqueTests(context.Context, *ListUniqueTestsRequest) (*ListUniqueTestsResponse, error)
	ListSignatures(context.Context, *ListSignaturesRequest) (*ListSignaturesResponse, error)
	ListSquads(context.Context, *ListSquadsRequest) (*ListSquadsResponse, error)
	IngestStatus(context.Context, *IngestStatusRequest) (*IngestStatusResponse, error)
}

// RegisterQueryServer attaches srv to a gRPC service registrar.
func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&QueryServiceDesc, srv)
}

// unary builds a method handler that decodes Req and dispatches to call.
func unary[Req any, Resp any](method string, call func(QueryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(QueryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(QueryServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// QueryServiceDesc describes the query API for grpc.Server.RegisterService.
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListBuilds", QueryServer.ListBuilds),
		unary("GetBuildTests", QueryServer.GetBuildTests),
		unary("ListFailureMatches", QueryServer.ListFailureMatches),
		unary("TopFailingTests", QueryServer.TopFailingTests),
		unary("ListUniqueTests", QueryServer.ListUniqueTests),
		unary("ListSignatures", QueryServer.ListSignatures),
		unary("ListSquads", QueryServer.ListSquads),
		unary("IngestStatus", QueryServer.IngestStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rhoci/v1/query",
}

// QueryClient calls the query API over the JSON codec.
type QueryClient struct {
	cc grpc.ClientConnInterface
}

// NewQueryClient wraps an established client connection.
func NewQueryClient(cc grpc.ClientConnInterface) *QueryClient {
	return &QueryClient{cc: cc}
}

func (c *QueryClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *QueryClient) ListBuilds(ctx context.Context, in *ListBuildsRequest, opts ...grpc.CallOption) (*ListBuildsResponse, error) {
	out := new(ListBuildsResponse)
	if err := c.invoke(ctx, "ListBuilds", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) GetBuildTests(ctx context.Context, in *BuildRequest, opts ...grpc.CallOption) (*GetBuildTestsResponse, error) {
	out := new(GetBuildTestsResponse)
	if err := c.invoke(ctx, "GetBuildTests", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) ListFailureMatches(ctx context.Context, in *BuildRequest, opts ...grpc.CallOption) (*ListFailureMatchesResponse, error) {
	out := new(ListFailureMatchesResponse)
	if err := c.invoke(ctx, "ListFailureMatches", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) TopFailingTests(ctx context.Context, in *TopFailingTestsRequest, opts ...grpc.CallOption) (*TopFailingTestsResponse, error) {
	out := new(TopFailingTestsResponse)
	if err := c.invoke(ctx, "TopFailingTests", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) ListUniqueTests(ctx context.Context, in *ListUniqueTestsRequest, opts ...grpc.CallOption) (*ListUniqueTestsResponse, error) {
	out := new(ListUniqueTestsResponse)
	if err := c.invoke(ctx, "ListUniqueTests", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) ListSignatures(ctx context.Context, in *ListSignaturesRequest, opts ...grpc.CallOption) (*ListSignaturesResponse, error) {
	out := new(ListSignaturesResponse)
	if err := c.invoke(ctx, "ListSignatures", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) ListSquads(ctx context.Context, in *ListSquadsRequest, opts ...grpc.CallOption) (*ListSquadsResponse, error) {
	out := new(ListSquadsResponse)
	if err := c.invoke(ctx, "ListSquads", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *QueryClient) IngestStatus(ctx context.Context, in *IngestStatusRequest, opts ...grpc.CallOption) (*IngestStatusResponse, error) {
	out := new(IngestStatusResponse)
	if err := c.invoke(ctx, "IngestStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
