package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiriru/mistral-relay/pkg/chat"
	"github.com/kiriru/mistral-relay/pkg/logger"
	"github.com/kiriru/mistral-relay/pkg/metrics"
	"github.com/kiriru/mistral-relay/pkg/normalizer"
)

const streamBufferSize = 32 * 1024

// Forwarder relays every request it receives to the upstream, normalizing the
// conversation of gated chat-completion requests on the way.
type Forwarder struct {
	gate         *Gate
	upstream     *Upstream
	metrics      *metrics.Relay
	maxBodyBytes int64
}

// NewForwarder creates a forwarder. A nil metrics recorder disables metrics.
func NewForwarder(gate *Gate, upstream *Upstream, recorder *metrics.Relay, maxBodyBytes int64) *Forwarder {
	return &Forwarder{
		gate:         gate,
		upstream:     upstream,
		metrics:      recorder,
		maxBodyBytes: maxBodyBytes,
	}
}

// Handle is the gin handler for every route the relay does not answer itself.
func (f *Forwarder) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	body, rerr := f.readBody(c)
	if rerr != nil {
		log.Warn("Rejected request body", "error", rerr)
		respondWithError(c, rerr)
		return
	}

	body, rerr = f.prepareBody(ctx, c.Request.Method, c.Request.URL.Path, body)
	if rerr != nil {
		log.Warn("Rejected chat request", "path", c.Request.URL.Path, "error", rerr)
		respondWithError(c, rerr)
		return
	}

	header := requestHeaders(c.Request.Header)
	if id := c.GetString(requestIDKey); id != "" {
		header.Set(RequestIDHeader, id)
	}
	target := f.upstream.URL(c.Request.URL.EscapedPath(), c.Request.URL.RawQuery)

	start := time.Now()
	resp, err := f.upstream.Do(ctx, c.Request.Method, target, header, body)
	if err != nil {
		f.metrics.RecordUpstream(ctx, 0, time.Since(start))
		log.Error("Upstream request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		respondWithError(c, WrapError(ErrUpstreamCode, "upstream request failed", err))
		return
	}
	defer resp.Body.Close()
	f.metrics.RecordUpstream(ctx, resp.StatusCode, time.Since(start))

	if err := streamResponse(c, resp); err != nil {
		log.Debug("Response stream interrupted", "error", err)
	}
}

func (f *Forwarder) readBody(c *gin.Context) ([]byte, *Error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, f.maxBodyBytes)
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, WrapError(ErrRequestTooLargeCode, "request body too large", err)
		}
		return nil, WrapError(ErrInvalidRequestCode, "failed to read request body", err)
	}
	return body, nil
}

// prepareBody returns the body to send upstream. Only POST and PUT bodies on
// gated requests are rewritten; everything else is returned as received.
func (f *Forwarder) prepareBody(ctx context.Context, method, path string, body []byte) ([]byte, *Error) {
	if method != http.MethodPost && method != http.MethodPut {
		return body, nil
	}
	model := chat.Model(body)
	if !f.gate.ShouldNormalize(path, model) {
		return body, nil
	}
	log := logger.FromContext(ctx).With("model", model)
	out, stats, err := chat.Rewrite(body)
	if err != nil {
		f.metrics.RecordRejected(ctx)
		return nil, WrapError(ErrInvalidRequestCode, "invalid chat request", err)
	}
	f.metrics.RecordNormalization(ctx, stats)
	if stats.Changed() {
		log.Debug("Normalized conversation",
			"input_turns", stats.InputTurns,
			"output_turns", stats.OutputTurns,
			"merged", stats.Merged,
			"demoted", stats.Demoted,
			"bridged", stats.Bridged,
		)
	}
	if f.gate.VerifyOutput() {
		verify(log, out)
	}
	return out, nil
}

func verify(log logger.Logger, body []byte) {
	req, err := chat.ParseRequest(body)
	if err != nil {
		log.Error("Normalized body does not parse", "error", err)
		return
	}
	if err := normalizer.Check(req.Turns); err != nil {
		log.Error("Normalized conversation violates alternation", "error", err)
	}
}

// streamResponse copies the upstream response to the client, flushing after
// every read so that server-sent events are delivered as they arrive.
func streamResponse(c *gin.Context, resp *http.Response) error {
	copyHeaders(c.Writer.Header(), responseHeaders(resp.Header))
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	buf := make([]byte, streamBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return werr
			}
			c.Writer.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
