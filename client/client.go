// Package client is a thin wire-protocol client for sima's control
// socket, used by cmd/simactl.
package client

import (
	"fmt"
	"io"
	"net"

	"sima/internal/wire"
)

// DefaultSocketPath is where cmd/sima listens unless overridden.
const DefaultSocketPath = "/run/sima.sock"

// Client talks to a single control socket, one request per call.
type Client struct {
	socketPath string
}

// New returns a Client that dials socketPath for every request.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Do sends req and returns the decoded response. Each call opens a
// fresh connection: write the encoded request, half-close the write
// side, read until EOF, decode.
func (c *Client) Do(req wire.Request) (wire.Response, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return wire.Response{}, fmt.Errorf("cannot connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if _, err := conn.Write(wire.EncodeRequest(req)); err != nil {
		return wire.Response{}, fmt.Errorf("cannot write request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return wire.Response{}, fmt.Errorf("cannot half-close connection: %w", err)
		}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return wire.Response{}, fmt.Errorf("cannot read response: %w", err)
	}
	resp, err := wire.DecodeResponse(data)
	if err != nil {
		return wire.Response{}, fmt.Errorf("cannot decode response: %w", err)
	}
	return resp, nil
}

// Start sends a Start(name) request.
func (c *Client) Start(name string) (wire.Response, error) { return c.Do(wire.StartRequest(name)) }

// Stop sends a Stop(name) request.
func (c *Client) Stop(name string) (wire.Response, error) { return c.Do(wire.StopRequest(name)) }

// Restart sends a Restart(name) request.
func (c *Client) Restart(name string) (wire.Response, error) {
	return c.Do(wire.RestartRequest(name))
}

// Status sends a Status request.
func (c *Client) Status() (wire.Response, error) { return c.Do(wire.StatusRequest()) }

// Poweroff sends a Poweroff request.
func (c *Client) Poweroff() (wire.Response, error) { return c.Do(wire.PoweroffRequest()) }

// Reboot sends a Reboot request.
func (c *Client) Reboot() (wire.Response, error) { return c.Do(wire.RebootRequest()) }

// SoftReboot sends a SoftReboot request.
func (c *Client) SoftReboot() (wire.Response, error) { return c.Do(wire.SoftRebootRequest()) }
