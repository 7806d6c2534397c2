package protocol

import (
	"fmt"
	"io"
	"strings"

	"github.com/unmta/unmta/internal/metrics"
	"github.com/unmta/unmta/internal/smtp/response"
	"github.com/unmta/unmta/internal/unlog"
)

// writeResponse writes r to w as one or more CRLF-terminated reply lines,
// using "-" continuation on every line but the last (spec §6: reply code
// format "CCC[-|SP]text CRLF"). Grounded directly on chasquid's
// writeResponse in internal/smtpsrv/conn.go, which implements the
// writing side of textproto.Reader.ReadResponse.
//
// Every line is also handed to log at the "smtp" level (spec §6), so
// that level prints the full client<->server dialog the same way
// chasquid's tracer does.
func writeResponse(w io.Writer, r response.Response, log *unlog.Logger, sessionID int64) error {
	metrics.ResponseCodesTotal.WithLabelValues(fmt.Sprint(r.Code), r.Phase.String()).Inc()

	lines := strings.Split(r.Message, "\n")
	for i := 0; i < len(lines)-1; i++ {
		wireLine := fmt.Sprintf("%d-%s", r.Code, lines[i])
		log.SMTPf(sessionID, "S", wireLine)
		if _, err := fmt.Fprintf(w, "%s\r\n", wireLine); err != nil {
			return err
		}
	}
	wireLine := fmt.Sprintf("%d %s", r.Code, lines[len(lines)-1])
	log.SMTPf(sessionID, "S", wireLine)
	_, err := fmt.Fprintf(w, "%s\r\n", wireLine)
	return err
}
