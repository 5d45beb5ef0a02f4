package relay

import (
	"bufio"
	"io"
	"strings"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/store"
)

// recorder persists one line of traffic
type recorder interface {
	Append(dir store.Direction, line string) (store.Record, error)
}

const readBufferSize = 64 * 1024

// pump copies src to dst line by line. Every line is handed to rec before it
// is forwarded, and is forwarded byte for byte as read. A failing rec is
// logged and does not stop forwarding. After dst fails the remaining input is
// still read and recorded so the writer on the other side never blocks; the
// first dst error is returned at end of input.
func pump(src io.Reader, dst io.Writer, dir store.Direction, rec recorder, logger *internal.Logger) (int, error) {
	br := bufio.NewReaderSize(src, readBufferSize)
	lines := 0
	var dstErr error
	for {
		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			lines++
			if _, err := rec.Append(dir, strings.TrimSuffix(line, "\n")); err != nil {
				logger.Errorf("Failed to record %s: %v", dir, err)
			}
			if dstErr == nil {
				if _, err := io.WriteString(dst, line); err != nil {
					logger.Warnf("Forwarding %s failed, draining: %v", dir, err)
					dstErr = err
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return lines, dstErr
			}
			if dstErr != nil {
				return lines, dstErr
			}
			return lines, readErr
		}
	}
}

// logLines writes every line of src to logger
func logLines(src io.Reader, logger *internal.Logger) int {
	br := bufio.NewReaderSize(src, readBufferSize)
	n := 0
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			n++
			logger.Infof("%s", line)
		}
		if err != nil {
			return n
		}
	}
}
