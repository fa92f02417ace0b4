// Package codec implements Talk2Me's wire envelope: a Fernet ciphertext,
// base64-encoded, terminated by CRLF (spec §4.3/§4.4). It owns only framing
// and encrypt/decrypt; JSON shapes for requests and replies live with its
// callers (internal/dispatcher, internal/federation and the clients).
package codec

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"talk2me/internal/cryptoenv"
)

// Conn wraps a byte stream with Fernet-framed read/write helpers. It is not
// safe for concurrent use — Talk2Me's protocol is a strict request/response
// loop per connection, so callers never need concurrent reads and writes on
// the same Conn.
type Conn struct {
	r *bufio.Reader
	w io.Writer
}

// NewConn wraps rw for framed reads and writes.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{r: bufio.NewReader(rw), w: rw}
}

// ReadFrame reads one CRLF-terminated frame and returns its trimmed
// ciphertext (still base64, not yet decrypted). io.EOF is returned verbatim
// so callers can distinguish a clean disconnect from a read error.
func (c *Conn) ReadFrame() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", io.EOF
		}
		if err != io.EOF {
			return "", fmt.Errorf("codec: read frame: %w", err)
		}
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" && err == io.EOF {
		return "", io.EOF
	}
	return line, nil
}

// WriteFrame writes ciphertext followed by CRLF.
func (c *Conn) WriteFrame(ciphertextB64 string) error {
	_, err := fmt.Fprintf(c.w, "%s\r\n", ciphertextB64)
	return err
}

// ReadJSON reads one frame and decrypts it under key, returning the
// plaintext JSON bytes.
func (c *Conn) ReadJSON(key cryptoenv.Key) ([]byte, error) {
	frame, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	return cryptoenv.Decrypt(key, frame)
}

// WriteJSON encrypts plaintext under key and writes it as one frame.
func (c *Conn) WriteJSON(key cryptoenv.Key, plaintext []byte) error {
	token, err := cryptoenv.Encrypt(key, plaintext, time.Now())
	if err != nil {
		return err
	}
	return c.WriteFrame(token)
}
