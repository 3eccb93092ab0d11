// Package client implements the thin TCP client used by cmd/kvforge-cli,
// modeled on original_source/src/client.rs's KvsClient: dial once, send one
// request per call, read back one response.
package client

import (
	"bufio"
	"fmt"
	"net"

	"kvforge/internal/kverrors"
	"kvforge/internal/wire"
)

// Client holds one open connection to a kvforge server.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.Io, "dial", err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(line string) (wire.Response, error) {
	if _, err := c.w.WriteString(line); err != nil {
		return wire.Response{}, kverrors.Wrap(kverrors.Io, "write request", err)
	}
	if err := c.w.Flush(); err != nil {
		return wire.Response{}, kverrors.Wrap(kverrors.Io, "flush request", err)
	}
	resp, err := wire.ReadResponse(c.r)
	if err != nil {
		return wire.Response{}, kverrors.Wrap(kverrors.Io, "read response", err)
	}
	return resp, nil
}

// Set sends a SET request.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(fmt.Sprintf("SET %s %s\n", key, value))
	if err != nil {
		return err
	}
	if !resp.IsOK() {
		return kverrors.New(kverrors.Io, resp.Message())
	}
	return nil
}

// Get sends a GET request, returning (value, found) rather than treating a
// miss as an error, matching engine.Engine.Lookup's Option<value> shape.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(fmt.Sprintf("GET %s\n", key))
	if err != nil {
		return "", false, err
	}
	if resp.IsNotFound() {
		return "", false, nil
	}
	if !resp.IsOK() {
		return "", false, kverrors.New(kverrors.Io, resp.Message())
	}
	return resp.Value(), true, nil
}

// Remove sends an RM request. A missing key surfaces as KeyNotFound, mirroring
// the NOTFOUND line the server sends for RM misses.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(fmt.Sprintf("RM %s\n", key))
	if err != nil {
		return err
	}
	if resp.IsNotFound() {
		return kverrors.New(kverrors.KeyNotFound, key)
	}
	if !resp.IsOK() {
		return kverrors.New(kverrors.Io, resp.Message())
	}
	return nil
}
