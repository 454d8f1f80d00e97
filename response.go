package goodwe

import "encoding/hex"

// Response wraps the raw bytes of a validated response frame together
// with the command that produced it and exposes a sequential read
// cursor over the trimmed payload.
type Response struct {
	raw     []byte
	command Command
	data    []byte
	pos     int
}

// NewResponse wraps raw response bytes. cmd may be nil, in which case
// the payload is the raw frame and Seek addresses are taken literally.
func NewResponse(raw []byte, cmd Command) *Response {
	r := &Response{raw: raw, command: cmd}
	if cmd != nil {
		r.data = cmd.TrimResponse(raw)
	} else {
		r.data = raw
	}
	return r
}

// Raw returns the full wire frame.
func (r *Response) Raw() []byte {
	return r.raw
}

// ResponseData returns the trimmed payload.
func (r *Response) ResponseData() []byte {
	return r.data
}

// Seek positions the read cursor at the byte offset of the given
// register address.
func (r *Response) Seek(address int) {
	if r.command != nil {
		r.pos = r.command.Offset(address)
	} else {
		r.pos = address
	}
}

// Read returns up to n bytes from the cursor and advances it. Reading
// past the end yields fewer (possibly zero) bytes, never an error.
func (r *Response) Read(n int) []byte {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil
	}
	end := r.pos + n
	if end > len(r.data) {
		end = len(r.data)
	}
	out := r.data[r.pos:end]
	r.pos = end
	return out
}

func (r *Response) String() string {
	return hex.EncodeToString(r.raw)
}
