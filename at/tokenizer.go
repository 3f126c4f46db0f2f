package at

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"strings"
)

// Splitter is used for tokenizing radio responses. It uses the signature of
// bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Lines end with LF; a CR immediately before the LF is dropped together with
// it, so both "\r\n" and "\n" terminated firmware output tokenizes the same.
// A CR at the very end of the buffer is not treated as a terminator on its
// own: the scanner asks for more data and the LF completes it on the next
// read.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// EncodeLine frames an outbound command for the wire.
func EncodeLine(text string) []byte {
	b := make([]byte, 0, len(text)+len(CRLF))
	b = append(b, text...)
	return append(b, CRLF...)
}

// NewScanner returns a scanner splitting r into lines with Splitter. Lines
// longer than MaxLineLength stop the scanner with bufio.ErrTooLong.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), MaxLineLength)
	scanner.Split(Splitter)
	return scanner
}

// Lines yields every line read from r in arrival order. The sequence ends
// when r reports EOF; any other read error is yielded once as the last
// element. Each call starts a fresh scanner.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := NewScanner(r)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}

// Classify identifies the nature of a radio line. outstanding reports
// whether a command is still waiting for its answer.
func Classify(line string, outstanding bool) Kind {
	if line == OK {
		return KindAck
	}
	if !outstanding {
		return KindUnsolicited
	}
	if IsError(line) {
		return KindError
	}
	return KindData
}

// IsError reports whether line starts with one of the firmware error tokens.
func IsError(line string) bool {
	for _, tok := range errorTokens {
		if line == tok || strings.HasPrefix(line, tok+" ") {
			return true
		}
	}
	return false
}
