package transport

import (
	"fmt"
	"net"
	"time"
)

// ReadFrame performs the single blocking read spec §6 calls for: "one TCP
// send/recv per logical message — record framing is implicit in socket
// boundaries." It sets a read deadline of timeout, issues one Read into a
// bufSize buffer, and returns exactly the bytes that call returned.
func ReadFrame(conn net.Conn, timeout time.Duration, bufSize int) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: set read deadline: %w", err)
	}
	buf := make([]byte, bufSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteFrame performs the single blocking write side of the same logical
// framing contract.
func WriteFrame(conn net.Conn, data []byte) error {
	_, err := conn.Write(data)
	return err
}
