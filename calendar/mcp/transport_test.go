package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/internal"
)

const helperEnv = "CALCMD_MCP_HELPER"

// TestHelperServer is not a real test, it is the MCP server the other tests
// start by re-running the test binary.
func TestHelperServer(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("helper process")
	}
	serve(mode)
	os.Exit(0)
}

func serve(mode string) {
	fmt.Fprintln(os.Stderr, "helper server ready")
	out := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil || req.ID == 0 {
			continue
		}
		reply := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "initialize":
			if mode == "mute" {
				continue
			}
			reply["result"] = map[string]any{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "helper", "version": "0.1"},
			}
			// A server side notification must be ignored by the client.
			_ = out.Encode(map[string]any{"jsonrpc": "2.0", "method": "notifications/tools/list_changed"})
		case "tools/list":
			reply["result"] = map[string]any{"tools": []map[string]any{
				{"name": internal.OpListEvents},
				{"name": internal.OpGetCurrentTime},
			}}
		case "tools/call":
			switch req.Params.Name {
			case internal.OpListEvents:
				reply["result"] = map[string]any{
					"content": []map[string]any{{"type": "text", "text": "1 event"}},
					"structuredContent": map[string]any{"events": []map[string]any{{
						"id":      "evt1",
						"summary": "Echo " + fmt.Sprint(req.Params.Arguments["calendarId"]),
						"start":   map[string]string{"dateTime": "2025-08-20T10:00:00Z"},
						"end":     map[string]string{"dateTime": "2025-08-20T11:00:00Z"},
					}}},
				}
			case "slow":
				time.Sleep(2 * time.Second)
				reply["result"] = map[string]any{}
			case "crash":
				os.Exit(3)
			default:
				reply["error"] = map[string]any{"code": -32602, "message": "unknown tool " + req.Params.Name}
			}
		default:
			reply["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		_ = out.Encode(reply)
	}
}

func helper(t *testing.T, mode string) *Transport {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("executable: %v", err)
	}
	tr := New(Config{
		Command: exe,
		Args:    []string{"-test.run=^TestHelperServer$"},
		Env:     []string{helperEnv + "=" + mode},
	}, nil)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransportCallsTools(t *testing.T) {
	tr := helper(t, "ok")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := tr.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if tools := tr.Tools(); len(tools) != 2 || tools[0] != internal.OpListEvents {
		t.Fatalf("unexpected tools %v", tools)
	}

	raw, err := tr.Invoke(ctx, internal.OpListEvents, internal.Args{"calendarId": "primary"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var res struct {
		StructuredContent struct {
			Events []struct {
				Summary string `json:"summary"`
			} `json:"events"`
		} `json:"structuredContent"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.StructuredContent.Events) != 1 || res.StructuredContent.Events[0].Summary != "Echo primary" {
		t.Fatalf("unexpected result %s", raw)
	}

	_, err = tr.Invoke(ctx, "teleport", nil)
	var remote *calendar.RemoteError
	if !errors.As(err, &remote) || remote.Code != "-32602" {
		t.Fatalf("expected a remote error, got %v", err)
	}
}

func TestTransportOpenTimeout(t *testing.T) {
	tr := helper(t, "mute")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := tr.Open(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the handshake to time out, got %v", err)
	}
	if _, err := tr.Invoke(context.Background(), internal.OpListEvents, nil); !errors.Is(err, calendar.ErrClosed) {
		t.Fatalf("a failed open must leave the transport closed, got %v", err)
	}
}

func TestTransportServerExit(t *testing.T) {
	tr := helper(t, "ok")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := tr.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := tr.Invoke(ctx, "crash", nil); !errors.Is(err, calendar.ErrClosed) {
		t.Fatalf("expected ErrClosed when the server dies, got %v", err)
	}

	// The client notices the transport went away.
	client := calendar.NewClient(tr, 10*time.Second, nil)
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if _, err := client.Call(ctx, internal.OpListEvents, internal.Args{}); err != nil {
		t.Fatalf("call after reconnect: %v", err)
	}
}

func TestTransportCallContext(t *testing.T) {
	tr := helper(t, "ok")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tr.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	callCtx, callCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer callCancel()
	if _, err := tr.Invoke(callCtx, "slow", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestTransportWithoutCommand(t *testing.T) {
	tr := New(Config{}, nil)
	if err := tr.Open(context.Background()); err == nil {
		t.Fatalf("expected an error without a command")
	}
}
