// Package grpcserver exposes the GarageKeeper gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/garage-keeper/internal/convert"
	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	sweeps   service.SweepService
	vehicles service.VehicleService
	events   service.EventService
	feed     service.NotificationService
	grace    time.Duration
	log      *zap.Logger
	now      func() time.Time
}

var _ GarageKeeperServer = (*Server)(nil)

// New constructs a gRPC server with injected services. grace is the window
// used by sweeps triggered through the API.
func New(sweeps service.SweepService, vehicles service.VehicleService, events service.EventService, grace time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{sweeps: sweeps, vehicles: vehicles, events: events, grace: grace, log: log, now: time.Now}
}

// WithNotifications enables ListNotifications.
func (s *Server) WithNotifications(feed service.NotificationService) *Server {
	s.feed = feed
	return s
}

// toStatus maps domain errors onto gRPC codes. Unexpected errors are logged
// and reported with a generic message.
func (s *Server) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "no auth")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrLocked):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, errs.ErrDerived):
		return status.Error(codes.FailedPrecondition, "derived event window is managed by its vehicle")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op+": deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op+": canceled")
	default:
		s.log.Error(op, zap.Error(err))
		return status.Error(codes.Internal, op+" failed")
	}
}

func userID(ctx context.Context) (uuid.UUID, error) {
	id, ok := UserIDFromCtx(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

func idArg(req *structpb.Struct) (int64, error) {
	id, err := convert.Int64(req, "id")
	if err != nil || id <= 0 {
		return 0, status.Error(codes.InvalidArgument, "bad id")
	}
	return id, nil
}

func empty() *structpb.Struct { return &structpb.Struct{Fields: map[string]*structpb.Value{}} }

// --- Sweep ---

// Sweep runs one reminder sweep and returns {ok, created, ...}.
func (s *Server) Sweep(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.sweeps.Sweep(ctx, s.now(), s.grace)
	if err != nil {
		return nil, s.toStatus("sweep", err)
	}
	return convert.ToStructSweep(res)
}

// --- Vehicles ---

// ReconcileVehicle syncs derived events from the stored expiry dates of {id}.
func (s *Server) ReconcileVehicle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := idArg(req)
	if err != nil {
		return nil, err
	}
	res, err := s.vehicles.Reconcile(ctx, uid, id)
	if err != nil {
		return nil, s.toStatus("reconcile", err)
	}
	return convert.ToStructReconcile(res)
}

// RefreshVehicle pulls fresh expiry dates for {id} and reconciles.
// The response is the reconcile result plus the updated "vehicle".
func (s *Server) RefreshVehicle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := idArg(req)
	if err != nil {
		return nil, err
	}
	v, res, err := s.vehicles.Refresh(ctx, uid, id)
	if err != nil {
		return nil, s.toStatus("refresh", err)
	}
	out, err := convert.ToStructReconcile(res)
	if err != nil {
		return nil, err
	}
	vs, err := convert.ToStructVehicle(*v)
	if err != nil {
		return nil, err
	}
	out.Fields["vehicle"] = structpb.NewStructValue(vs)
	return out, nil
}

// CreateVehicle registers a vehicle.
func (s *Server) CreateVehicle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStructVehicle(req, service.ParseExpiry)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	v, err := s.vehicles.Create(ctx, uid, in)
	if err != nil {
		return nil, s.toStatus("create vehicle", err)
	}
	return convert.ToStructVehicle(*v)
}

// ListVehicles returns {vehicles}.
func (s *Server) ListVehicles(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := s.vehicles.List(ctx, uid)
	if err != nil {
		return nil, s.toStatus("list vehicles", err)
	}
	return convert.ToStructVehicles(vs)
}

// DeleteVehicle removes {id}. Its derived events stay as free-standing events.
func (s *Server) DeleteVehicle(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := idArg(req)
	if err != nil {
		return nil, err
	}
	if err := s.vehicles.Delete(ctx, uid, id); err != nil {
		return nil, s.toStatus("delete vehicle", err)
	}
	return empty(), nil
}

// --- Events ---

// CreateEvent stores a user event.
func (s *Server) CreateEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStructNewEvent(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ev, err := s.events.Create(ctx, uid, in)
	if err != nil {
		return nil, s.toStatus("create event", err)
	}
	return convert.ToStructEvent(*ev)
}

// ListEvents returns {events} overlapping [from, to).
func (s *Server) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	from, okFrom, err1 := convert.Time(req, "from")
	to, okTo, err2 := convert.Time(req, "to")
	if err1 != nil || err2 != nil || !okFrom || !okTo {
		return nil, status.Error(codes.InvalidArgument, "from/to must be RFC 3339 timestamps")
	}
	evs, err := s.events.List(ctx, uid, from, to)
	if err != nil {
		return nil, s.toStatus("list events", err)
	}
	return convert.ToStructEvents(evs)
}

// UpdateEvent patches {id, ...fields}.
func (s *Server) UpdateEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, patch, err := convert.FromStructEventPatch(req)
	if err != nil || id <= 0 {
		return nil, status.Error(codes.InvalidArgument, "bad update request")
	}
	ev, err := s.events.Update(ctx, uid, id, patch)
	if err != nil {
		return nil, s.toStatus("update event", err)
	}
	return convert.ToStructEvent(*ev)
}

// DeleteEvent removes {id}.
func (s *Server) DeleteEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := idArg(req)
	if err != nil {
		return nil, err
	}
	if err := s.events.Delete(ctx, uid, id); err != nil {
		return nil, s.toStatus("delete event", err)
	}
	return empty(), nil
}

// --- Notifications ---

// ListNotifications returns {notifications}, newest first. Optional {limit}.
func (s *Server) ListNotifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	if s.feed == nil {
		return nil, status.Error(codes.Unimplemented, "notifications disabled")
	}
	var limit int64
	if convert.Has(req, "limit") {
		if limit, err = convert.Int64(req, "limit"); err != nil {
			return nil, status.Error(codes.InvalidArgument, "bad limit")
		}
	}
	ns, err := s.feed.List(ctx, uid, int(limit))
	if err != nil {
		return nil, s.toStatus("list notifications", err)
	}
	return convert.ToStructNotifications(ns)
}
