package grpcclient

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/grpcserver"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls AvailabilityService on a remote booking-service.
type Client struct {
	conn *grpc.ClientConn
}

func New(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type Query struct {
	StaffID         string
	Date            string
	DurationMinutes int
	ServiceName     string
	Addons          []string
}

type Availability struct {
	StaffID         string
	Date            string
	DurationMinutes int
	Slots           []string
}

func (c *Client) GetAvailability(ctx context.Context, q Query) (Availability, error) {
	fields := map[string]any{
		"staff_id": q.StaffID,
		"date":     q.Date,
	}
	if q.DurationMinutes > 0 {
		fields["duration_minutes"] = q.DurationMinutes
	}
	if q.ServiceName != "" {
		fields["service_name"] = q.ServiceName
	}
	if len(q.Addons) > 0 {
		addons := make([]any, 0, len(q.Addons))
		for _, a := range q.Addons {
			addons = append(addons, a)
		}
		fields["addons"] = addons
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return Availability{}, fmt.Errorf("build request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, grpcserver.GetAvailabilityMethod, req, resp); err != nil {
		return Availability{}, err
	}

	out := Availability{
		StaffID:         resp.GetFields()["staff_id"].GetStringValue(),
		Date:            resp.GetFields()["date"].GetStringValue(),
		DurationMinutes: int(resp.GetFields()["duration_minutes"].GetNumberValue()),
		Slots:           []string{},
	}
	for _, v := range resp.GetFields()["slots"].GetListValue().GetValues() {
		out.Slots = append(out.Slots, v.GetStringValue())
	}
	return out, nil
}
