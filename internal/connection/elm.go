package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/obd"
)

const elmCommandTimeout = 3 * time.Second

// elmInit resets the adapter, turns echo and linefeeds off and selects
// automatic protocol detection.
var elmInit = []string{"ATZ", "ATE0", "ATL0", "ATSP0"}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// elmLink speaks the ELM327 text protocol over any byte stream: a serial
// port, a TCP socket or a BLE characteristic pair.
type elmLink struct {
	mu  sync.Mutex
	rwc io.ReadWriteCloser
	buf []byte
}

func newELMLink(ctx context.Context, rwc io.ReadWriteCloser) (*elmLink, error) {
	l := &elmLink{rwc: rwc, buf: make([]byte, 128)}
	for _, cmd := range elmInit {
		if _, err := l.exec(ctx, cmd); err != nil {
			_ = rwc.Close()
			return nil, fmt.Errorf("elm327 init %s: %w", cmd, err)
		}
	}
	return l, nil
}

// exec sends cmd and returns the reply up to the '>' prompt.
func (l *elmLink) exec(ctx context.Context, cmd string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, elmCommandTimeout)
	defer cancel()
	if d, ok := l.rwc.(readDeadliner); ok {
		deadline, _ := ctx.Deadline()
		_ = d.SetReadDeadline(deadline)
	}

	if _, err := io.WriteString(l.rwc, cmd+"\r"); err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := l.rwc.Read(l.buf)
		sb.Write(l.buf[:n])
		if reply, ok := strings.CutSuffix(strings.TrimRight(sb.String(), " \r\n"), ">"); ok {
			return reply, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (l *elmLink) Query(ctx context.Context, pid string) ([]byte, error) {
	reply, err := l.exec(ctx, obd.Request(pid))
	if err != nil {
		return nil, err
	}
	return matchResponse(reply, 0x01, obd.Request(pid)[2:])
}

func (l *elmLink) TroubleCodes(ctx context.Context) ([]string, error) {
	reply, err := l.exec(ctx, "03")
	if err != nil {
		return nil, err
	}
	data, err := matchResponse(reply, 0x03, "")
	if errors.Is(err, obd.ErrNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return obd.DecodeDTCs(data), nil
}

func (l *elmLink) Close() error {
	return l.rwc.Close()
}

// matchResponse returns the data of the first line answering mode and pid.
// Several ECUs may answer; status lines such as SEARCHING... are skipped.
func matchResponse(reply string, mode byte, pid string) ([]byte, error) {
	lastErr := obd.ErrNoData
	for _, line := range strings.FieldsFunc(reply, func(r rune) bool { return r == '\r' || r == '\n' }) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "...") {
			continue
		}
		resp, err := obd.ParseResponse(line)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Mode == mode && (pid == "" || resp.PID == pid) {
			return resp.Data, nil
		}
		log.Debug("Ignoring unrelated ELM327 line", "line", line)
	}
	return nil, lastErr
}
