package rpc

import (
	"context"
	"fmt"
	"math"

	"github.com/kainosnoema/remq/pkg/message"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote LogService. It satisfies remq.Store.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial creates a client for addr. Connection establishment is lazy; an
// unreachable server surfaces as ErrStoreUnavailable on the first call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxResponseSize), grpc.MaxCallSendMsgSize(MaxRequestSize)),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection, which the caller keeps owning.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection if Dial created it.
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, op, method string, in, out wireMessage) error {
	err := c.conn.Invoke(ctx, method, in, out,
		grpc.ForceCodec(codec{}),
		grpc.MaxCallSendMsgSize(MaxRequestSize),
		grpc.MaxCallRecvMsgSize(MaxResponseSize))
	if err != nil {
		return fromStatus(op, err)
	}
	return nil
}

func (c *Client) Append(ctx context.Context, channel string, body []byte) (uint64, error) {
	out := new(AppendResponse)
	if err := c.invoke(ctx, "append", methodAppend, &AppendRequest{Channel: channel, Body: body}, out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// ReadRange keeps requesting while the server splits the range at its byte
// budget, so the result is short only when the range is exhausted.
func (c *Client) ReadRange(ctx context.Context, pattern string, afterID uint64, limit int) ([]message.Message, error) {
	if limit <= 0 || int64(limit) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: limit %d", message.ErrInvalidCursor, limit)
	}
	var page []message.Message
	for {
		out := new(ReadRangeResponse)
		in := &ReadRangeRequest{Pattern: pattern, AfterID: afterID, Limit: uint32(limit - len(page))}
		if err := c.invoke(ctx, "read range", methodReadRange, in, out); err != nil {
			return nil, err
		}
		if page == nil {
			page = out.Messages
		} else {
			page = append(page, out.Messages...)
		}
		if !out.More || len(out.Messages) == 0 || len(page) >= limit {
			return page, nil
		}
		afterID = out.Messages[len(out.Messages)-1].ID
	}
}

func (c *Client) Prune(ctx context.Context, pattern string, policy message.PrunePolicy) (int, error) {
	if err := policy.Validate(); err != nil {
		return 0, err
	}
	out := new(PruneResponse)
	if err := c.invoke(ctx, "prune", methodPrune, pruneRequest(pattern, policy), out); err != nil {
		return 0, err
	}
	return int(out.Removed), nil
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.invoke(ctx, "health", methodHealth, &HealthRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}
