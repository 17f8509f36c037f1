package ipc

import (
	"encoding/json"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Porter.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Porter.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Porter.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectCreate submits a raw manifest for registration.
func (c *Client) ProjectCreate(manifest []byte) (*ProjectCreateResponse, error) {
	var resp ProjectCreateResponse
	req := ProjectCreateRequest{Manifest: json.RawMessage(manifest)}
	if err := c.client.Call("Porter.ProjectCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectList returns projects optionally filtered by statuses.
func (c *Client) ProjectList(statuses []string) (*ProjectListResponse, error) {
	var resp ProjectListResponse
	req := ProjectListRequest{Statuses: statuses}
	if err := c.client.Call("Porter.ProjectList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectDescribe returns the detail view for a single project.
func (c *Client) ProjectDescribe(id int64) (*ProjectDescribeResponse, error) {
	var resp ProjectDescribeResponse
	req := ProjectDescribeRequest{ID: id}
	if err := c.client.Call("Porter.ProjectDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectRetry resumes a paused project.
func (c *Client) ProjectRetry(id int64) (*ProjectRetryResponse, error) {
	var resp ProjectRetryResponse
	req := ProjectRetryRequest{ID: id}
	if err := c.client.Call("Porter.ProjectRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Porter.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
