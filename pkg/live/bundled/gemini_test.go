package bundled

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/particles"
)

func geminiConfig(endpoint string) live.Config {
	cfg := live.DefaultConfig().WithAPIKey("test-key")
	cfg.Endpoint = endpoint
	cfg.HandshakeTimeout = 5 * time.Second
	return cfg
}

func TestGeminiSession(t *testing.T) {
	type step struct {
		setup    map[string]any
		realtime map[string]any
		toolResp map[string]any
	}
	seen := make(chan step, 1)

	url := wsServer(t, func(ws *websocket.Conn, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var s step
		ws.ReadJSON(&s.setup)
		ws.WriteJSON(map[string]any{"setupComplete": map[string]any{}})

		ws.ReadJSON(&s.realtime)

		ws.WriteJSON(map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []any{
					map[string]any{"id": "call-1", "name": "update_particles", "args": map[string]any{"shape": "heart"}},
					map[string]any{"id": "call-2", "name": "update_particles", "args": map[string]any{"speed": 2.5}},
				},
			},
		})
		ws.ReadJSON(&s.toolResp)
		seen <- s

		ws.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
		ws.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []any{map[string]any{"text": "```json\n{\"colorPalette\": \"neon\"}\n```"}},
				},
			},
		})

		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limited")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.ReadMessage()
	})

	tr, err := NewGemini(geminiConfig(url))
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tr.Open(ctx, live.SessionInfo{ID: "s1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, live.Frame{Data: "aGVsbG8=", MIMEType: "image/jpeg"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Type != live.MessageStateUpdate {
		t.Fatalf("type = %s, want state-update", msg.Type)
	}
	if msg.Fields.Shape == nil || *msg.Fields.Shape != particles.ShapeHeart {
		t.Errorf("shape = %v, want heart", msg.Fields.Shape)
	}
	if msg.Fields.Speed == nil || *msg.Fields.Speed != 2.5 {
		t.Errorf("speed = %v, want 2.5", msg.Fields.Speed)
	}

	s := <-seen
	setup, _ := s.setup["setup"].(map[string]any)
	if setup["model"] != "models/gemini-2.0-flash-exp" {
		t.Errorf("setup model = %v", setup["model"])
	}
	raw, _ := json.Marshal(setup["tools"])
	if !strings.Contains(string(raw), UpdateParticlesFunction) {
		t.Errorf("setup tools missing %s: %s", UpdateParticlesFunction, raw)
	}

	chunks := s.realtime["realtimeInput"].(map[string]any)["mediaChunks"].([]any)
	chunk := chunks[0].(map[string]any)
	if chunk["data"] != "aGVsbG8=" || chunk["mimeType"] != "image/jpeg" {
		t.Errorf("media chunk = %v", chunk)
	}

	responses := s.toolResp["toolResponse"].(map[string]any)["functionResponses"].([]any)
	if len(responses) != 2 {
		t.Errorf("tool responses = %d, want 2", len(responses))
	}

	msg, err = conn.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Fields.ColorPalette == nil || *msg.Fields.ColorPalette != particles.PaletteNeon {
		t.Errorf("palette = %v, want neon", msg.Fields.ColorPalette)
	}

	_, err = conn.Receive(ctx)
	if live.Reason(err) != "rate limited" {
		t.Errorf("close reason = %q, want %q", live.Reason(err), "rate limited")
	}
}

func TestGeminiUnknownFunctionIsProtocolError(t *testing.T) {
	url := wsServer(t, func(ws *websocket.Conn, r *http.Request) {
		var setup map[string]any
		ws.ReadJSON(&setup)
		ws.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		ws.WriteJSON(map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []any{map[string]any{"id": "1", "name": "launch_rocket", "args": map[string]any{}}},
			},
		})
		ws.ReadMessage()
	})

	tr, _ := NewGemini(geminiConfig(url))
	conn, err := tr.Open(context.Background(), live.SessionInfo{ID: "s1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Receive(context.Background()); !live.IsKind(err, live.KindProtocol) {
		t.Errorf("error = %v, want protocol", err)
	}
}

func TestGeminiGoAway(t *testing.T) {
	url := wsServer(t, func(ws *websocket.Conn, r *http.Request) {
		var setup map[string]any
		ws.ReadJSON(&setup)
		ws.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		ws.WriteJSON(map[string]any{"goAway": map[string]any{}})
		ws.ReadMessage()
	})

	tr, _ := NewGemini(geminiConfig(url))
	conn, err := tr.Open(context.Background(), live.SessionInfo{ID: "s1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	msg, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Type != live.MessageError {
		t.Errorf("type = %s, want error", msg.Type)
	}
}

func TestGeminiSetupTimeout(t *testing.T) {
	url := wsServer(t, func(ws *websocket.Conn, r *http.Request) {
		ws.ReadMessage()
		ws.ReadMessage()
	})

	cfg := geminiConfig(url)
	cfg.HandshakeTimeout = 100 * time.Millisecond
	tr, _ := NewGemini(cfg)

	if _, err := tr.Open(context.Background(), live.SessionInfo{ID: "s1"}); err == nil {
		t.Error("Open should fail when setupComplete never arrives")
	}
}

func TestUpdateFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"plain json", `{"shape":"galaxy"}`, true},
		{"fenced", "```json\n{\"speed\": 1}\n```", true},
		{"prose", "I see an open palm.", false},
		{"unknown keys only", `{"gesture":"wave"}`, false},
		{"bad enum", `{"shape":"cube"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := genai.NewContentFromText(tt.text, genai.RoleModel)
			if _, ok := updateFromText(content); ok != tt.ok {
				t.Errorf("ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}
