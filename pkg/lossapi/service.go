package lossapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gridloss.v1.LossService"

// Full method names.
const (
	LossService_RunSnapshot_FullMethodName      = "/" + ServiceName + "/RunSnapshot"
	LossService_RunHistorical_FullMethodName    = "/" + ServiceName + "/RunHistorical"
	LossService_ListReadings_FullMethodName     = "/" + ServiceName + "/ListReadings"
	LossService_ListAlerts_FullMethodName       = "/" + ServiceName + "/ListAlerts"
	LossService_AcknowledgeAlert_FullMethodName = "/" + ServiceName + "/AcknowledgeAlert"
	LossService_InvestigateAlert_FullMethodName = "/" + ServiceName + "/InvestigateAlert"
	LossService_ResolveAlert_FullMethodName     = "/" + ServiceName + "/ResolveAlert"
	LossService_DismissAlert_FullMethodName     = "/" + ServiceName + "/DismissAlert"
	LossService_AlertStats_FullMethodName       = "/" + ServiceName + "/AlertStats"
	LossService_TransformerStats_FullMethodName = "/" + ServiceName + "/TransformerStats"
)

// LossServiceServer is the server API for LossService.
type LossServiceServer interface {
	RunSnapshot(context.Context, *RunSnapshotRequest) (*RunResponse, error)
	RunHistorical(context.Context, *RunHistoricalRequest) (*RunResponse, error)
	ListReadings(context.Context, *ListReadingsRequest) (*ListReadingsResponse, error)
	ListAlerts(context.Context, *ListAlertsRequest) (*ListAlertsResponse, error)
	AcknowledgeAlert(context.Context, *AlertActionRequest) (*AlertResponse, error)
	InvestigateAlert(context.Context, *AlertActionRequest) (*AlertResponse, error)
	ResolveAlert(context.Context, *AlertActionRequest) (*AlertResponse, error)
	DismissAlert(context.Context, *AlertActionRequest) (*AlertResponse, error)
	AlertStats(context.Context, *AlertStatsRequest) (*AlertStatsResponse, error)
	TransformerStats(context.Context, *TransformerStatsRequest) (*TransformerStatsResponse, error)
}

// UnimplementedLossServiceServer answers every method with codes.Unimplemented.
// Embed it to stay forward compatible.
type UnimplementedLossServiceServer struct{}

func (UnimplementedLossServiceServer) RunSnapshot(context.Context, *RunSnapshotRequest) (*RunResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RunSnapshot not implemented")
}

func (UnimplementedLossServiceServer) RunHistorical(context.Context, *RunHistoricalRequest) (*RunResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RunHistorical not implemented")
}

func (UnimplementedLossServiceServer) ListReadings(context.Context, *ListReadingsRequest) (*ListReadingsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListReadings not implemented")
}

func (UnimplementedLossServiceServer) ListAlerts(context.Context, *ListAlertsRequest) (*ListAlertsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAlerts not implemented")
}

func (UnimplementedLossServiceServer) AcknowledgeAlert(context.Context, *AlertActionRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AcknowledgeAlert not implemented")
}

func (UnimplementedLossServiceServer) InvestigateAlert(context.Context, *AlertActionRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method InvestigateAlert not implemented")
}

func (UnimplementedLossServiceServer) ResolveAlert(context.Context, *AlertActionRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ResolveAlert not implemented")
}

func (UnimplementedLossServiceServer) DismissAlert(context.Context, *AlertActionRequest) (*AlertResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DismissAlert not implemented")
}

func (UnimplementedLossServiceServer) AlertStats(context.Context, *AlertStatsRequest) (*AlertStatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AlertStats not implemented")
}

func (UnimplementedLossServiceServer) TransformerStats(context.Context, *TransformerStatsRequest) (*TransformerStatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method TransformerStats not implemented")
}

// RegisterLossServiceServer registers srv on s.
func RegisterLossServiceServer(s grpc.ServiceRegistrar, srv LossServiceServer) {
	s.RegisterService(&LossService_ServiceDesc, srv)
}

// unaryHandler adapts a typed method to a grpc.MethodHandler.
func unaryHandler[Req, Resp any](fullMethod string, call func(LossServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LossServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LossServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LossService_ServiceDesc is the grpc.ServiceDesc for LossService.
var LossService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LossServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RunSnapshot",
			Handler:    unaryHandler(LossService_RunSnapshot_FullMethodName, LossServiceServer.RunSnapshot),
		},
		{
			MethodName: "RunHistorical",
			Handler:    unaryHandler(LossService_RunHistorical_FullMethodName, LossServiceServer.RunHistorical),
		},
		{
			MethodName: "ListReadings",
			Handler:    unaryHandler(LossService_ListReadings_FullMethodName, LossServiceServer.ListReadings),
		},
		{
			MethodName: "ListAlerts",
			Handler:    unaryHandler(LossService_ListAlerts_FullMethodName, LossServiceServer.ListAlerts),
		},
		{
			MethodName: "AcknowledgeAlert",
			Handler:    unaryHandler(LossService_AcknowledgeAlert_FullMethodName, LossServiceServer.AcknowledgeAlert),
		},
		{
			MethodName: "InvestigateAlert",
			Handler:    unaryHandler(LossService_InvestigateAlert_FullMethodName, LossServiceServer.InvestigateAlert),
		},
		{
			MethodName: "ResolveAlert",
			Handler:    unaryHandler(LossService_ResolveAlert_FullMethodName, LossServiceServer.ResolveAlert),
		},
		{
			MethodName: "DismissAlert",
			Handler:    unaryHandler(LossService_DismissAlert_FullMethodName, LossServiceServer.DismissAlert),
		},
		{
			MethodName: "AlertStats",
			Handler:    unaryHandler(LossService_AlertStats_FullMethodName, LossServiceServer.AlertStats),
		},
		{
			MethodName: "TransformerStats",
			Handler:    unaryHandler(LossService_TransformerStats_FullMethodName, LossServiceServer.TransformerStats),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lossapi",
}
