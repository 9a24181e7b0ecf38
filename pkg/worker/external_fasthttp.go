package worker

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"parafs/pkg/op"
	"parafs/pkg/perr"
)

// NewFasthttpSubmitter returns a SubmitFunc that hands an op's buffered
// payload to a remote collector over HTTP POST, the shape External is
// meant for: a non-local sink the op manager has no visibility into once
// accepted. Grounded on the teacher's fasthttp client usage for outbound
// requests, reused here instead of net/http since External ops are
// latency-sensitive and fasthttp avoids a per-request allocation for the
// request/response objects.
func NewFasthttpSubmitter(endpoint string, timeout time.Duration) SubmitFunc {
	client := &fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	return func(ctx context.Context, o *op.Op) error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(endpoint)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/octet-stream")
		if buf := o.Buffer(); buf != nil {
			req.SetBody(buf.B)
		}

		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(timeout)
		}
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return perr.Wrap("worker.external", perr.IO, "fasthttp submit", err)
		}
		if sc := resp.StatusCode(); sc < 200 || sc >= 300 {
			return perr.New("worker.external", perr.IO, "remote sink rejected op")
		}
		return nil
	}
}
