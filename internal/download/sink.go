package download

import (
	"bytes"
	"os"
)

// sink consumes the response body. open is called when the response
// arrives, write once per chunk, and close on every terminal transition.
// close must be safe to call more than once.
type sink interface {
	open() error
	write(p []byte) error
	close(complete bool) error
}

// bufferSink accumulates the body in memory.
type bufferSink struct {
	buf    bytes.Buffer
	sealed bool
}

func (s *bufferSink) open() error {
	s.buf.Reset()
	return nil
}

func (s *bufferSink) write(p []byte) error {
	_, err := s.buf.Write(p)
	return err
}

func (s *bufferSink) close(bool) error {
	s.sealed = true
	return nil
}

// bytes returns the buffered body once the sink is sealed.
func (s *bufferSink) bytes() []byte {
	if !s.sealed {
		return nil
	}
	return s.buf.Bytes()
}

// fileSink writes the body to a file, one write per chunk.
// Partially written files are left in place on failure.
type fileSink struct {
	path string
	f    *os.File
}

func (s *fileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

func (s *fileSink) write(p []byte) error {
	_, err := s.f.Write(p)
	return err
}

func (s *fileSink) close(complete bool) error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil

	if complete {
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
