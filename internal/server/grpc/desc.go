package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "garagekeeper.v1.GarageKeeper"

// Method names.
const (
	MethodSweep             = "Sweep"
	MethodReconcileVehicle  = "ReconcileVehicle"
	MethodRefreshVehicle    = "RefreshVehicle"
	MethodCreateVehicle     = "CreateVehicle"
	MethodListVehicles      = "ListVehicles"
	MethodDeleteVehicle     = "DeleteVehicle"
	MethodCreateEvent       = "CreateEvent"
	MethodListEvents        = "ListEvents"
	MethodUpdateEvent       = "UpdateEvent"
	MethodDeleteEvent       = "DeleteEvent"
	MethodListNotifications = "ListNotifications"
)

// FullMethod returns "/garagekeeper.v1.GarageKeeper/<name>".
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// GarageKeeperServer is the server API. Every message is a structpb.Struct.
type GarageKeeperServer interface {
	Sweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReconcileVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListVehicles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListNotifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(GarageKeeperServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if ic == nil {
				return call(srv.(GarageKeeperServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GarageKeeperServer), ctx, req.(*structpb.Struct))
			}
			return ic(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the GarageKeeper service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GarageKeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSweep, GarageKeeperServer.Sweep),
		unary(MethodReconcileVehicle, GarageKeeperServer.ReconcileVehicle),
		unary(MethodRefreshVehicle, GarageKeeperServer.RefreshVehicle),
		unary(MethodCreateVehicle, GarageKeeperServer.CreateVehicle),
		unary(MethodListVehicles, GarageKeeperServer.ListVehicles),
		unary(MethodDeleteVehicle, GarageKeeperServer.DeleteVehicle),
		unary(MethodCreateEvent, GarageKeeperServer.CreateEvent),
		unary(MethodListEvents, GarageKeeperServer.ListEvents),
		unary(MethodUpdateEvent, GarageKeeperServer.UpdateEvent),
		unary(MethodDeleteEvent, GarageKeeperServer.DeleteEvent),
		unary(MethodListNotifications, GarageKeeperServer.ListNotifications),
	},
	Metadata: "garagekeeper/v1/garagekeeper.proto",
}

// RegisterGarageKeeperServer registers srv on s.
func RegisterGarageKeeperServer(s grpc.ServiceRegistrar, srv GarageKeeperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the GarageKeeper service over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with in and returns the decoded response.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
