package api

import (
	"context"
	"strings"

	"cuebook/internal/domain"
	"cuebook/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "cuebook.availability.v1.AvailabilityService"
	methodGetAvailability   = "/" + availabilityServiceName + "/GetAvailability"
	methodListTables        = "/" + availabilityServiceName + "/ListTables"
)

// AvailabilityServer is the gRPC availability API. Messages are
// google.protobuf.Struct documents so clients need no generated stubs.
type AvailabilityServer interface {
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTables(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// TableLister reads the tables of a club.
type TableLister interface {
	ListTables(ctx context.Context, clubID int64, tableType string) ([]*models.Table, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetAvailability",
			Handler: structHandler(methodGetAvailability, func(s AvailabilityServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.GetAvailability(ctx, in)
			}),
		},
		{
			MethodName: "ListTables",
			Handler: structHandler(methodListTables, func(s AvailabilityServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ListTables(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cuebook/availability/v1/availability.proto",
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

func structHandler(
	fullMethod string,
	call func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type AvailabilityService struct {
	bookings domain.BookingService
	tables   TableLister
}

func NewAvailabilityService(bookings domain.BookingService, tables TableLister) *AvailabilityService {
	return &AvailabilityService{bookings: bookings, tables: tables}
}

// GetAvailability expects {club_id, date, start_hour, end_hour, table_type?}.
func (s *AvailabilityService) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	clubID, ok := numberField(req, "club_id")
	if !ok || clubID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "club_id is required")
	}
	date := stringField(req, "date")
	if date == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	start, okStart := numberField(req, "start_hour")
	end, okEnd := numberField(req, "end_hour")
	if !okStart || !okEnd {
		return nil, status.Error(codes.InvalidArgument, "start_hour and end_hour are required")
	}

	q := domain.AvailabilityQuery{
		ClubID:    int64(clubID),
		Date:      date,
		StartHour: start,
		EndHour:   end,
		TableType: stringField(req, "table_type"),
	}
	result, err := s.bookings.CheckAvailability(ctx, q)
	if err != nil {
		return nil, grpcError(err)
	}

	types := make([]any, 0, len(result))
	for _, t := range result {
		types = append(types, map[string]any{
			"table_type": t.TableType,
			"total":      t.Total,
			"free":       t.Free,
		})
	}
	return structpb.NewStruct(map[string]any{
		"club_id":    q.ClubID,
		"date":       q.Date,
		"start_hour": q.StartHour,
		"end_hour":   q.EndHour,
		"types":      types,
	})
}

// ListTables expects {club_id, table_type?}.
func (s *AvailabilityService) ListTables(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	clubID, ok := numberField(req, "club_id")
	if !ok || clubID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "club_id is required")
	}
	tableType := stringField(req, "table_type")
	if tableType != "" && !models.ValidTableType(tableType) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown table type %q", tableType)
	}

	tables, err := s.tables.ListTables(ctx, int64(clubID), tableType)
	if err != nil {
		return nil, grpcError(err)
	}
	out := make([]any, 0, len(tables))
	for _, t := range tables {
		out = append(out, map[string]any{
			"id":         t.ID,
			"name":       t.Name,
			"type":       t.Type,
			"status":     t.Status,
			"sort_order": t.SortOrder,
		})
	}
	return structpb.NewStruct(map[string]any{"tables": out})
}

func numberField(s *structpb.Struct, name string) (float64, bool) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func stringField(s *structpb.Struct, name string) string {
	return strings.TrimSpace(s.GetFields()[name].GetStringValue())
}
