package ws

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"runnerd/internal/params"
	"runnerd/internal/payload"
	"runnerd/internal/wire"
)

type stubInvoker struct {
	fn func(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error)
}

func (s *stubInvoker) Invoke(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
	return s.fn(ctx, name, batched)
}

func dialTestServer(t *testing.T, invoker Invoker) *Client {
	t.Helper()
	ts := httptest.NewServer(NewHandler(invoker, zerolog.Nop()))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url, zerolog.Nop())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(conn.Close)
	return conn
}

func encodeCall(t *testing.T) ([]byte, string) {
	t.Helper()
	p := params.New([]*payload.Payload{payload.New([]byte("data"), map[string]any{}, "rows")}, nil)
	body, contentType, err := wire.EncodeParams(p)
	if err != nil {
		t.Fatalf("EncodeParams: %v", err)
	}
	return body, contentType
}

func TestClient_Call(t *testing.T) {
	invoker := &stubInvoker{fn: func(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
		if name != "predict" {
			return nil, errors.New("unexpected method " + name)
		}
		sample, err := batched.Sample()
		if err != nil {
			return nil, err
		}
		return payload.New(append([]byte("out:"), sample.Data...), map[string]any{"note": "n"}, "rows"), nil
	}}
	conn := dialTestServer(t, invoker)

	body, contentType := encodeCall(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := conn.Call(ctx, "predict", body, contentType)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !bytes.Equal(result.Data, []byte("out:data")) {
		t.Errorf("result data = %q, want out:data", result.Data)
	}
	if result.Container != "rows" {
		t.Errorf("result container = %q, want rows", result.Container)
	}
	if result.Meta["note"] != "n" {
		t.Errorf("result meta = %v, want note=n", result.Meta)
	}
}

func TestClient_CallError(t *testing.T) {
	invoker := &stubInvoker{fn: func(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
		return nil, errors.New("model exploded")
	}}
	conn := dialTestServer(t, invoker)

	body, contentType := encodeCall(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Call(ctx, "predict", body, contentType)
	if err == nil || !strings.Contains(err.Error(), "model exploded") {
		t.Fatalf("Call error = %v, want model exploded", err)
	}
}

func TestClient_ConcurrentCalls(t *testing.T) {
	invoker := &stubInvoker{fn: func(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
		return payload.New([]byte(name), map[string]any{}, "rows"), nil
	}}
	conn := dialTestServer(t, invoker)

	body, contentType := encodeCall(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	methods := []string{"a", "b", "c", "d"}
	for _, m := range methods {
		wg.Add(1)
		go func(method string) {
			defer wg.Done()
			result, err := conn.Call(ctx, method, body, contentType)
			if err != nil {
				t.Errorf("Call(%s): %v", method, err)
				return
			}
			if string(result.Data) != method {
				t.Errorf("Call(%s) = %q, replies crossed", method, result.Data)
			}
		}(m)
	}
	wg.Wait()
}

func TestClient_BadBody(t *testing.T) {
	invoker := &stubInvoker{fn: func(ctx context.Context, name string, batched params.Params[*payload.Payload]) (*payload.Payload, error) {
		return payload.New(nil, map[string]any{}, "rows"), nil
	}}
	conn := dialTestServer(t, invoker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Call(ctx, "predict", []byte("not multipart"), "application/json")
	if err == nil {
		t.Fatal("Call accepted a non-multipart body")
	}
}
