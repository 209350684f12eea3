package proto

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// Codec is registered under content-subtype "json"; clients select it with
// grpc.CallContentSubtype(Codec{}.Name()).
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (Codec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(Codec{})
}

const (
	ServiceName           = "backtest.BacktestService"
	methodExecuteBacktest = "/" + ServiceName + "/ExecuteBacktest"
	methodGetBacktest     = "/" + ServiceName + "/GetBacktest"
	methodListPresets     = "/" + ServiceName + "/ListPresets"
)

type ListPresetsRequest struct{}

type ListPresetsResponse struct {
	Presets []*Preset `json:"presets"`
}

type BacktestServiceServer interface {
	ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error)
	GetBacktest(context.Context, *GetBacktestRequest) (*BacktestResponse, error)
	ListPresets(context.Context, *ListPresetsRequest) (*ListPresetsResponse, error)
}

// UnimplementedBacktestServiceServer can be embedded for forward
// compatibility.
type UnimplementedBacktestServiceServer struct{}

func (UnimplementedBacktestServiceServer) ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ExecuteBacktest not implemented")
}

func (UnimplementedBacktestServiceServer) GetBacktest(context.Context, *GetBacktestRequest) (*BacktestResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBacktest not implemented")
}

func (UnimplementedBacktestServiceServer) ListPresets(context.Context, *ListPresetsRequest) (*ListPresetsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPresets not implemented")
}

func RegisterBacktestServiceServer(s grpc.ServiceRegistrar, srv BacktestServiceServer) {
	s.RegisterService(&BacktestServiceDesc, srv)
}

func executeBacktestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BacktestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).ExecuteBacktest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExecuteBacktest}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).ExecuteBacktest(ctx, req.(*BacktestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBacktestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBacktestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).GetBacktest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetBacktest}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).GetBacktest(ctx, req.(*GetBacktestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listPresetsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListPresetsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).ListPresets(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListPresets}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).ListPresets(ctx, req.(*ListPresetsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteBacktest", Handler: executeBacktestHandler},
		{MethodName: "GetBacktest", Handler: getBacktestHandler},
		{MethodName: "ListPresets", Handler: listPresetsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "backtest.proto",
}

type BacktestServiceClient interface {
	ExecuteBacktest(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error)
	GetBacktest(ctx context.Context, in *GetBacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error)
	ListPresets(ctx context.Context, in *ListPresetsRequest, opts ...grpc.CallOption) (*ListPresetsResponse, error)
}

type backtestServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBacktestServiceClient(cc grpc.ClientConnInterface) BacktestServiceClient {
	return &backtestServiceClient{cc}
}

func (c *backtestServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Codec{}.Name())}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *backtestServiceClient) ExecuteBacktest(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error) {
	out := new(BacktestResponse)
	if err := c.invoke(ctx, methodExecuteBacktest, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backtestServiceClient) GetBacktest(ctx context.Context, in *GetBacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error) {
	out := new(BacktestResponse)
	if err := c.invoke(ctx, methodGetBacktest, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backtestServiceClient) ListPresets(ctx context.Context, in *ListPresetsRequest, opts ...grpc.CallOption) (*ListPresetsResponse, error) {
	out := new(ListPresetsResponse)
	if err := c.invoke(ctx, methodListPresets, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
