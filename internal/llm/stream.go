package llm

import "io"

// Stream is a lazy, finite, forward-only sequence of text fragments from a
// completion provider. Recv returns io.EOF after the last fragment; any
// other error is terminal and means the completion failed. A stream that
// returns io.EOF on the first Recv is a valid empty completion.
type Stream interface {
	Recv() (string, error)
	// Close releases the underlying connection. Safe to call more than once
	// and after Recv returned an error.
	Close() error
}

// Drain consumes a stream to completion and returns the concatenated text.
func Drain(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		fragment, err := s.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return "", err
		}
		out = append(out, fragment...)
	}
}

// textStream serves a fixed payload as a single-fragment stream. Used to
// give non-streaming completions the same shape as streamed ones.
type textStream struct {
	text string
	done bool
}

// NewTextStream wraps already-complete text in the Stream contract.
func NewTextStream(text string) Stream {
	return &textStream{text: text}
}

func (s *textStream) Recv() (string, error) {
	if s.done || s.text == "" {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *textStream) Close() error { return nil }
