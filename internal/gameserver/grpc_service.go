package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/notify"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

// ArenaServiceName is the fully qualified gRPC service name.
const ArenaServiceName = "arena.v1.ArenaService"

// EventSubscribed is the first envelope key of every event stream. It tells
// the client that events produced from now on will reach the stream.
const EventSubscribed = "subscribed"

// Request and response field names.
const (
	FieldParticipantID = "participant_id"
	FieldSessionID     = "session_id"
	FieldMode          = "mode"
)

// ArenaServiceServer is the inbound arena API. Every message is a
// google.protobuf.Struct:
//
//	Join      {participant_id, mode}        -> {session_id}
//	Confirm, Surrender, Cancel, Leave {participant_id} -> {}
//	Submit    {participant_id, attack, defense, attack_companion, companion_area, target} -> {}
//	Snapshot  {session_id}                  -> session state
//	Events    {participant_id}              -> stream of {key, params}
type ArenaServiceServer interface {
	Join(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Confirm(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Surrender(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Leave(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Events(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

type unaryCall func(ArenaServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	full := "/" + ArenaServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ArenaServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ArenaServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ArenaServiceServer).Events(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ArenaServiceDesc describes ArenaService for grpc.Server.RegisterService.
var ArenaServiceDesc = grpc.ServiceDesc{
	ServiceName: ArenaServiceName,
	HandlerType: (*ArenaServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: unaryHandler("Join", ArenaServiceServer.Join)},
		{MethodName: "Confirm", Handler: unaryHandler("Confirm", ArenaServiceServer.Confirm)},
		{MethodName: "Submit", Handler: unaryHandler("Submit", ArenaServiceServer.Submit)},
		{MethodName: "Surrender", Handler: unaryHandler("Surrender", ArenaServiceServer.Surrender)},
		{MethodName: "Cancel", Handler: unaryHandler("Cancel", ArenaServiceServer.Cancel)},
		{MethodName: "Leave", Handler: unaryHandler("Leave", ArenaServiceServer.Leave)},
		{MethodName: "Snapshot", Handler: unaryHandler("Snapshot", ArenaServiceServer.Snapshot)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
}

// RegisterArenaServiceServer registers srv on s.
func RegisterArenaServiceServer(s grpc.ServiceRegistrar, srv ArenaServiceServer) {
	s.RegisterService(&ArenaServiceDesc, srv)
}

// ArenaServiceClient is the client side of ArenaServiceServer.
type ArenaServiceClient interface {
	Join(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Confirm(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Surrender(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Cancel(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Leave(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Events(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type arenaServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewArenaServiceClient creates a client on cc.
func NewArenaServiceClient(cc grpc.ClientConnInterface) ArenaServiceClient {
	return &arenaServiceClient{cc: cc}
}

func (c *arenaServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ArenaServiceName+"/"+method, in, out, cOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *arenaServiceClient) Join(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Join", in, opts)
}

func (c *arenaServiceClient) Confirm(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Confirm", in, opts)
}

func (c *arenaServiceClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Submit", in, opts)
}

func (c *arenaServiceClient) Surrender(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Surrender", in, opts)
}

func (c *arenaServiceClient) Cancel(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Cancel", in, opts)
}

func (c *arenaServiceClient) Leave(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Leave", in, opts)
}

func (c *arenaServiceClient) Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Snapshot", in, opts)
}

func (c *arenaServiceClient) Events(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := c.cc.NewStream(ctx, &ArenaServiceDesc.Streams[0], "/"+ArenaServiceName+"/Events", cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// GRPCService serves ArenaServiceServer from an ArenaHandler, with event
// streams fed by an EventHub.
type GRPCService struct {
	handler *ArenaHandler
	hub     *EventHub
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewGRPCService creates a GRPCService.
//
// Precondition: handler and hub must be non-nil; hub must be the handler's notifier
// (directly or upstream of it) for streams to receive events.
func NewGRPCService(handler *ArenaHandler, hub *EventHub, logger *zap.Logger) *GRPCService {
	if handler == nil || hub == nil {
		panic("gameserver.NewGRPCService: handler and hub must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCService{handler: handler, hub: hub, logger: logger, done: make(chan struct{})}
}

// Close ends every open event stream. Unary calls are unaffected.
func (g *GRPCService) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func participantOf(in *structpb.Struct) (string, error) {
	id := stringField(in, FieldParticipantID)
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "participant_id is required")
	}
	return id, nil
}

// statusOf maps handler errors onto gRPC status codes.
func statusOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, combat.ErrInvalidDecision), errors.Is(err, match.ErrUnknownMode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, postgres.ErrSnapshotNotFound), errors.Is(err, match.ErrSessionNotFound),
		errors.Is(err, match.ErrNotParticipant):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, match.ErrAlreadyQueued):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, match.ErrSessionClosed), errors.Is(err, match.ErrTurnResolving):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Errorf(codes.Internal, "arena: %v", err)
	}
}

func empty() *structpb.Struct { return &structpb.Struct{} }

// participantCall runs fn for the participant named by in.
func participantCall(in *structpb.Struct, fn func(string) error) (*structpb.Struct, error) {
	id, err := participantOf(in)
	if err != nil {
		return nil, err
	}
	if err := fn(id); err != nil {
		return nil, statusOf(err)
	}
	return empty(), nil
}

// Join queues a participant.
//
// Postcondition: Returns {session_id} or a status error.
func (g *GRPCService) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := participantOf(in)
	if err != nil {
		return nil, err
	}
	sid, err := g.handler.Join(ctx, match.Mode(stringField(in, FieldMode)), id)
	if err != nil {
		return nil, statusOf(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSessionID: structpb.NewStringValue(sid),
	}}, nil
}

// Confirm marks a 1v1 participant ready.
func (g *GRPCService) Confirm(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return participantCall(in, g.handler.Confirm)
}

// Submit records a turn decision.
func (g *GRPCService) Submit(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := participantOf(in)
	if err != nil {
		return nil, err
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding decision: %v", err)
	}
	var req DecisionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding decision: %v", err)
	}
	if err := g.handler.Submit(id, req); err != nil {
		return nil, statusOf(err)
	}
	return empty(), nil
}

// Surrender forfeits the participant's match.
func (g *GRPCService) Surrender(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return participantCall(in, g.handler.Surrender)
}

// Cancel withdraws the participant from a pending session.
func (g *GRPCService) Cancel(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return participantCall(in, g.handler.Cancel)
}

// Leave removes the participant from its session.
func (g *GRPCService) Leave(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return participantCall(in, g.handler.Leave)
}

// Snapshot returns the public state of a session.
func (g *GRPCService) Snapshot(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sid := stringField(in, FieldSessionID)
	if sid == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	st, err := g.handler.Snapshot(sid)
	if err != nil {
		return nil, statusOf(err)
	}
	return st, nil
}

// Events streams the participant's notifications until the client goes away
// or the service is closed. The first message is always EventSubscribed.
func (g *GRPCService) Events(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	id, err := participantOf(in)
	if err != nil {
		return err
	}
	events, cancel := g.hub.Subscribe(id)
	defer cancel()
	g.logger.Debug("event stream opened", zap.String("participant", id))
	defer g.logger.Debug("event stream closed", zap.String("participant", id))

	if err := stream.Send(notify.Envelope(EventSubscribed, nil)); err != nil {
		return err
	}
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.done:
			return status.Error(codes.Unavailable, "arena service shutting down")
		case env, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		}
	}
}
