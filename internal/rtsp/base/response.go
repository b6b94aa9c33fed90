package base

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
)

// Response is an RTSP response.
type Response struct {
	Proto         string
	StatusCode    StatusCode
	StatusMessage string
	Header        Header
	Body          []byte
}

// Read reads a status line, headers, and body from rb.
func (res *Response) Read(rb *bufio.Reader) error {
	b, err := readBytesLimited(rb, ' ', 255)
	if err != nil {
		return err
	}
	proto := string(b[:len(b)-1])
	if proto != rtspProtocol10 && proto != rtspProtocol20 {
		return fmt.Errorf("rtsp: unsupported protocol version %q", proto)
	}
	res.Proto = proto

	b, err = readBytesLimited(rb, ' ', 4)
	if err != nil {
		return err
	}
	code, err := strconv.ParseInt(string(b[:len(b)-1]), 10, 32)
	if err != nil {
		return fmt.Errorf("rtsp: invalid status code")
	}
	res.StatusCode = StatusCode(code)

	b, err = readBytesLimited(rb, '\r', 255)
	if err != nil {
		return err
	}
	res.StatusMessage = string(b[:len(b)-1])
	if err := readByteEqual(rb, '\n'); err != nil {
		return err
	}

	if err := res.Header.read(rb); err != nil {
		return err
	}
	return (*payload)(&res.Body).read(rb, res.Header)
}

// Write writes the status line, headers, and body to bw.
func (res Response) Write(bw *bufio.Writer) error {
	proto := res.Proto
	if proto == "" {
		proto = rtspProtocol10
	}
	if res.StatusMessage == "" {
		res.StatusMessage = statusMessages[res.StatusCode]
	}

	if _, err := bw.Write([]byte(proto + " " + strconv.Itoa(int(res.StatusCode)) + " " + res.StatusMessage + "\r\n")); err != nil {
		return err
	}

	if len(res.Body) != 0 {
		res.Header.Set("Content-Length", strconv.Itoa(len(res.Body)))
	}
	if err := res.Header.write(bw); err != nil {
		return err
	}
	if err := payload(res.Body).write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// String renders the response for logging.
func (res Response) String() string {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	_ = res.Write(w)
	return buf.String()
}
