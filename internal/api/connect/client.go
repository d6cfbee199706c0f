package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the audio service.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	origin     string
	opts       []connect.ClientOption
}

// NewClient creates a client for the service at baseURL. origin is sent as the
// caller's process context and may be empty.
func NewClient(httpClient connect.HTTPClient, baseURL, origin string, opts ...connect.ClientOption) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		origin:     origin,
		opts:       opts,
	}
}

func (c *Client) client(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
	return connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
}

// Call invokes a unary procedure with params and returns the response payload.
func (c *Client) Call(ctx context.Context, procedure string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	msg, err := structpb.NewStruct(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req := connect.NewRequest(msg)
	if c.origin != "" {
		req.Header().Set(OriginHeader, c.origin)
	}
	resp, err := c.client(procedure).CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// Subscribe opens a callback stream and calls fn for every message, starting
// with the subscription message carrying the channel ID. It returns when ctx is
// done, the server closes the stream, or fn fails.
func (c *Client) Subscribe(ctx context.Context, fn func(msg map[string]any) error) error {
	stream, err := c.client(SubscribeCallbacksProcedure).CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg().AsMap()); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && connect.CodeOf(err) != connect.CodeCanceled {
		return err
	}
	return nil
}
