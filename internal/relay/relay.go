package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

// JSON-RPC error codes emitted by the relay itself.
const (
	parseErrorCode    = -32700
	internalErrorCode = -32603
)

// defaultTimeout bounds each backend HTTP round trip.
const defaultTimeout = 10 * time.Second

// maxResponseSize caps how much of a backend response body is read.
const maxResponseSize = 32 * 1024 * 1024

// Config carries everything the relay needs. Nothing is read from the
// environment.
type Config struct {
	// Endpoint is the backend HTTP URL every message is forwarded to.
	Endpoint string

	// Headers are attached to every forwarded request, for example the
	// organization header a multi-tenant backend expects.
	Headers map[string]string

	// Timeout bounds each round trip, 10s when zero.
	Timeout time.Duration

	// MaxMessageSize caps a single inbound line, 4 MiB when zero.
	MaxMessageSize int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Logger *logger.Logger
}

// Relay pumps newline-delimited JSON-RPC between a local byte stream and a
// remote HTTP endpoint. Messages are forwarded independently and
// concurrently; responses identify themselves by id, so completion order
// does not matter and none is imposed.
type Relay struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
	timeout  time.Duration
	log      *logger.Logger
	acc      *messageAccumulator

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New validates the configuration and builds a relay.
func New(cfg Config) (*Relay, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint URL %q: scheme must be http or https", cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewLoggerWithWriter(false, false, false, io.Discard)
	}

	return &Relay{
		endpoint: cfg.Endpoint,
		headers:  cfg.Headers,
		client:   client,
		timeout:  timeout,
		log:      log,
		acc:      newMessageAccumulator(cfg.MaxMessageSize),
	}, nil
}

// Run reads newline-delimited messages from in until EOF or context
// cancellation, forwarding each to the endpoint and writing responses to
// out. A trailing unterminated line is processed as a final message. Run
// waits for in-flight messages before returning.
func (r *Relay) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				if msg := r.acc.flush(); len(msg) > 0 {
					r.dispatch(ctx, msg, out)
				}
				r.wg.Wait()
				return nil
			}
			r.wg.Wait()
			return fmt.Errorf("failed to read input: %w", err)
		case chunk := <-chunks:
			msgs, err := r.acc.feed(chunk)
			for _, msg := range msgs {
				r.dispatch(ctx, msg, out)
			}
			if err != nil {
				r.writeError(out, nil, parseErrorCode, fmt.Sprintf("Invalid JSON request: %v", err))
			}
		}
	}
}

// dispatch hands one message to its own goroutine.
func (r *Relay) dispatch(ctx context.Context, msg []byte, out io.Writer) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.relayMessage(ctx, msg, out)
	}()
}

// relayMessage handles a single inbound message end to end. Requests always
// produce exactly one line on out; notifications never produce output.
func (r *Relay) relayMessage(ctx context.Context, msg []byte, out io.Writer) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(msg, &obj); err != nil {
		r.log.WarningVerbose("Discarding malformed message: %v", err)
		r.writeError(out, nil, parseErrorCode, fmt.Sprintf("Invalid JSON request: %v", err))
		return
	}

	// A message is a request exactly when the id key is present, even with
	// a null value. The raw bytes are kept verbatim for the response.
	rawID, isRequest := obj["id"]
	method := methodOf(obj)
	r.log.Request(method, json.RawMessage(msg))

	// Every forward is bounded so a pending request always resolves, even
	// against a backend that never answers.
	postCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := r.post(postCtx, msg)
	if !isRequest {
		if err != nil {
			r.log.WarningVerbose("Failed to deliver notification %s: %v", method, err)
		}
		return
	}
	if err != nil {
		r.writeError(out, rawID, internalErrorCode, err.Error())
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		r.writeError(out, rawID, internalErrorCode, "Empty response from server")
		return
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		r.writeError(out, rawID, internalErrorCode, fmt.Sprintf("Invalid JSON response: %v", err))
		return
	}

	// The response is correlated by construction; the original request id
	// wins over whatever the backend answered with.
	resp["jsonrpc"] = json.RawMessage(`"2.0"`)
	resp["id"] = rawID
	line, err := json.Marshal(resp)
	if err != nil {
		r.writeError(out, rawID, internalErrorCode, fmt.Sprintf("Invalid JSON response: %v", err))
		return
	}
	r.writeLine(out, line)
	r.log.Response(method, json.RawMessage(line))
}

// post forwards one message body to the endpoint and returns the raw
// response body. The HTTP status is deliberately ignored; whatever the
// backend answered is judged by its body alone.
func (r *Relay) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcError        `json:"error"`
}

// writeError emits a locally generated JSON-RPC error line. A nil id stands
// for messages whose id never parsed and becomes null on the wire.
func (r *Relay) writeError(out io.Writer, id json.RawMessage, code int, message string) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	line, err := json.Marshal(errorResponse{JSONRPC: "2.0", ID: id, Error: rpcError{Code: code, Message: message}})
	if err != nil {
		r.log.Error("Failed to encode error response: %v", err)
		return
	}
	r.writeLine(out, line)
	r.log.Response("error", json.RawMessage(line))
}

// writeLine emits one complete output line. Concurrent relays share out, so
// writes are serialized to keep lines intact.
func (r *Relay) writeLine(out io.Writer, line []byte) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	fmt.Fprintf(out, "%s\n", line)
}

func methodOf(obj map[string]json.RawMessage) string {
	raw, ok := obj["method"]
	if !ok {
		return ""
	}
	var method string
	if err := json.Unmarshal(raw, &method); err != nil {
		return ""
	}
	return method
}
