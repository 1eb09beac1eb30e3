package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "getAccountInfo" {
			t.Errorf("method: got %s, want getAccountInfo", req.Method)
		}

		// Commitment must be forwarded in the second param.
		opts, ok := req.Params[1].(map[string]interface{})
		if !ok || opts["commitment"] != "processed" {
			t.Errorf("commitment not forwarded: %v", req.Params)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"lamports":   uint64(1461600),
					"owner":      "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
					"data":       []string{"AQIDBA==", "base64"},
					"executable": false,
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "SomePubkey", CommitmentProcessed)
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info")
	}
	if info.Owner != "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA" {
		t.Errorf("owner mismatch: %s", info.Owner)
	}
	if info.Data != "AQIDBA==" {
		t.Errorf("data mismatch: %s", info.Data)
	}
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": nil},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "MissingPubkey", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Error("expected nil for missing account")
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(123456789),
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))
	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot != 123456789 {
		t.Errorf("slot: got %d, want 123456789", slot)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts: got %d, want 3", attempts.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "invalid params"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))
	_, err := client.GetAccountInfo(context.Background(), "bad", CommitmentConfirmed)
	if err == nil {
		t.Fatal("expected RPC error")
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, attempts=%d", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Hour))
	_, err := client.GetSlot(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
