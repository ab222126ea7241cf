package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service exchanges google.protobuf.Struct messages, so no generated
// code is needed on either side.
const (
	ServiceName           = "salonbook.availability.v1.AvailabilityService"
	GetAvailabilityMethod = "/" + ServiceName + "/GetAvailability"
)

// AvailabilityServer is the server API for AvailabilityService.
type AvailabilityServer interface {
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: getAvailabilityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "salonbook/availability/v1/availability.proto",
}

func getAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetAvailabilityMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type server struct {
	engine *availability.Engine
	logger *slog.Logger
}

// Register installs AvailabilityService and the standard health service.
// The returned health server lets the caller flip to NOT_SERVING on shutdown.
func Register(grpcServer *grpc.Server, engine *availability.Engine, logger *slog.Logger) *health.Server {
	grpcServer.RegisterService(&serviceDesc, &server{engine: engine, logger: logger})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

func (s *server) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	staffID := stringField(fields, "staff_id")
	date := stringField(fields, "date")
	if staffID == "" || date == "" {
		return nil, status.Error(codes.InvalidArgument, "staff_id and date are required")
	}

	explicit := 0
	if v, ok := fields["duration_minutes"]; ok {
		n := v.GetNumberValue()
		if n != math.Trunc(n) || n <= 0 || n > math.MaxInt32 {
			return nil, status.Error(codes.InvalidArgument, "duration_minutes must be a positive whole number")
		}
		explicit = int(n)
	}

	duration, err := s.engine.RequestedDuration(ctx, explicit, stringField(fields, "service_name"), listField(fields, "addons"))
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.engine.Availability(ctx, staffID, date, duration)
	if err != nil {
		return nil, toStatus(err)
	}

	slots := make([]any, 0, len(res.Slots))
	for _, slot := range availability.Strings(res.Slots) {
		slots = append(slots, slot)
	}
	out, err := structpb.NewStruct(map[string]any{
		"staff_id":         res.StaffID,
		"date":             availability.FormatDate(res.Date),
		"duration_minutes": res.DurationMinutes,
		"slots":            slots,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to build response")
	}
	return out, nil
}

func toStatus(err error) error {
	if errors.Is(err, availability.ErrInvalidInput) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func stringField(fields map[string]*structpb.Value, key string) string {
	return strings.TrimSpace(fields[key].GetStringValue())
}

func listField(fields map[string]*structpb.Value, key string) []string {
	var out []string
	for _, v := range fields[key].GetListValue().GetValues() {
		if s := strings.TrimSpace(v.GetStringValue()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
