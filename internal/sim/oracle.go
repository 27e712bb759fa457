package sim

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/louhi-db/louhi/internal/hrana"
)

// MismatchError reports a response status that contradicts the fault class
// that produced the request. It is the primary signal this tool exists to
// produce, and it is terminal.
type MismatchError struct {
	Class FaultClass
	Want  int
	Got   int
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("oracle mismatch: %s cycle expected status %d, got %d", e.Class, e.Want, e.Got)
}

// Oracle validates raw responses against the decision that produced them.
type Oracle struct {
	out io.Writer // diagnostic dump destination
}

// NewOracle creates an oracle writing diagnostics to out (stderr when nil).
func NewOracle(out io.Writer) *Oracle {
	if out == nil {
		out = os.Stderr
	}
	return &Oracle{out: out}
}

// Check parses the raw response and compares its status against the
// decision's expectation. On mismatch the full parsed response and body are
// dumped before the terminal error is returned; an unparsable response is
// equally terminal. The observed status is returned for the trace.
func (o *Oracle) Check(raw []byte, d Decision) (int, error) {
	resp, body, err := hrana.ParseResponse(raw)
	if err != nil {
		return 0, fmt.Errorf("oracle: %w", err)
	}
	if resp.StatusCode != d.WantStatus {
		o.dump(resp, body)
		return resp.StatusCode, &MismatchError{Class: d.Class, Want: d.WantStatus, Got: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

func (o *Oracle) dump(resp *http.Response, body []byte) {
	fmt.Fprintf(o.out, "--- unexpected response ---\n")
	fmt.Fprintf(o.out, "%s %s\n", resp.Proto, resp.Status)
	for k, vals := range resp.Header {
		for _, v := range vals {
			fmt.Fprintf(o.out, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintf(o.out, "\n%s\n", body)
	fmt.Fprintf(o.out, "---------------------------\n")
}
