package lossapi

import (
	"context"

	"google.golang.org/grpc"
)

// LossServiceClient is the client API for LossService.
type LossServiceClient interface {
	RunSnapshot(ctx context.Context, in *RunSnapshotRequest, opts ...grpc.CallOption) (*RunResponse, error)
	RunHistorical(ctx context.Context, in *RunHistoricalRequest, opts ...grpc.CallOption) (*RunResponse, error)
	ListReadings(ctx context.Context, in *ListReadingsRequest, opts ...grpc.CallOption) (*ListReadingsResponse, error)
	ListAlerts(ctx context.Context, in *ListAlertsRequest, opts ...grpc.CallOption) (*ListAlertsResponse, error)
	AcknowledgeAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	InvestigateAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	ResolveAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	DismissAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error)
	AlertStats(ctx context.Context, in *AlertStatsRequest, opts ...grpc.CallOption) (*AlertStatsResponse, error)
	TransformerStats(ctx context.Context, in *TransformerStatsRequest, opts ...grpc.CallOption) (*TransformerStatsResponse, error)
}

type lossServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLossServiceClient creates a client on cc. Every call uses the json codec.
func NewLossServiceClient(cc grpc.ClientConnInterface) LossServiceClient {
	return &lossServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lossServiceClient) RunSnapshot(ctx context.Context, in *RunSnapshotRequest, opts ...grpc.CallOption) (*RunResponse, error) {
	return invoke[RunSnapshotRequest, RunResponse](ctx, c.cc, LossService_RunSnapshot_FullMethodName, in, opts)
}

func (c *lossServiceClient) RunHistorical(ctx context.Context, in *RunHistoricalRequest, opts ...grpc.CallOption) (*RunResponse, error) {
	return invoke[RunHistoricalRequest, RunResponse](ctx, c.cc, LossService_RunHistorical_FullMethodName, in, opts)
}

func (c *lossServiceClient) ListReadings(ctx context.Context, in *ListReadingsRequest, opts ...grpc.CallOption) (*ListReadingsResponse, error) {
	return invoke[ListReadingsRequest, ListReadingsResponse](ctx, c.cc, LossService_ListReadings_FullMethodName, in, opts)
}

func (c *lossServiceClient) ListAlerts(ctx context.Context, in *ListAlertsRequest, opts ...grpc.CallOption) (*ListAlertsResponse, error) {
	return invoke[ListAlertsRequest, ListAlertsResponse](ctx, c.cc, LossService_ListAlerts_FullMethodName, in, opts)
}

func (c *lossServiceClient) AcknowledgeAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	return invoke[AlertActionRequest, AlertResponse](ctx, c.cc, LossService_AcknowledgeAlert_FullMethodName, in, opts)
}

func (c *lossServiceClient) InvestigateAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	return invoke[AlertActionRequest, AlertResponse](ctx, c.cc, LossService_InvestigateAlert_FullMethodName, in, opts)
}

func (c *lossServiceClient) ResolveAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	return invoke[AlertActionRequest, AlertResponse](ctx, c.cc, LossService_ResolveAlert_FullMethodName, in, opts)
}

func (c *lossServiceClient) DismissAlert(ctx context.Context, in *AlertActionRequest, opts ...grpc.CallOption) (*AlertResponse, error) {
	return invoke[AlertActionRequest, AlertResponse](ctx, c.cc, LossService_DismissAlert_FullMethodName, in, opts)
}

func (c *lossServiceClient) AlertStats(ctx context.Context, in *AlertStatsRequest, opts ...grpc.CallOption) (*AlertStatsResponse, error) {
	return invoke[AlertStatsRequest, AlertStatsResponse](ctx, c.cc, LossService_AlertStats_FullMethodName, in, opts)
}

func (c *lossServiceClient) TransformerStats(ctx context.Context, in *TransformerStatsRequest, opts ...grpc.CallOption) (*TransformerStatsResponse, error) {
	return invoke[TransformerStatsRequest, TransformerStatsResponse](ctx, c.cc, LossService_TransformerStats_FullMethodName, in, opts)
}
