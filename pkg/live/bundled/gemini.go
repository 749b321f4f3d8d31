package bundled

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/genai"

	"github.com/teslashibe/go-gesture/internal/httpc"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/live"
	"github.com/teslashibe/go-gesture/pkg/particles"
)

const (
	// Gemini Live API WebSocket endpoint
	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	geminiScope = "https://www.googleapis.com/auth/generative-language"

	// UpdateParticlesFunction is the tool the model calls with partial updates.
	UpdateParticlesFunction = "update_particles"
)

// Gemini implements live.Transport against Google's Gemini Live API.
// Frames go out as realtime media chunks; updates come back as
// update_particles tool calls or JSON text in the model turn.
type Gemini struct {
	config live.Config
	log    *slog.Logger
	tokens oauth2.TokenSource
}

// NewGemini creates a Gemini Live transport. Without an API key it
// authenticates with Application Default Credentials.
func NewGemini(cfg live.Config) (*Gemini, error) {
	g := &Gemini{
		config: cfg,
		log:    log.Component("gemini"),
	}

	if cfg.GoogleAPIKey == "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpc.Client)
		ts, err := google.DefaultTokenSource(ctx, geminiScope)
		if err != nil {
			return nil, fmt.Errorf("live/gemini: no API key and no default credentials: %w", err)
		}
		g.tokens = ts
	}
	return g, nil
}

func (g *Gemini) endpoint() (string, error) {
	raw := g.config.Endpoint
	if raw == "" {
		raw = geminiLiveURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("live/gemini: bad endpoint: %w", err)
	}
	if g.config.GoogleAPIKey != "" {
		q := u.Query()
		q.Set("key", g.config.GoogleAPIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Open dials Gemini Live, sends the session setup and waits for setupComplete.
func (g *Gemini) Open(ctx context.Context, info live.SessionInfo) (live.Conn, error) {
	endpoint, err := g.endpoint()
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	if g.tokens != nil {
		tok, err := g.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("live/gemini: token: %w", err)
		}
		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	if g.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.HandshakeTimeout)
		defer cancel()
	}

	ws, err := dial(ctx, g.config.HandshakeTimeout, endpoint, header)
	if err != nil {
		return nil, err
	}
	conn := &geminiConn{wsConn: newWSConn(ws), log: g.log.With("session", info.ID), debug: g.config.Debug}

	setup := &genai.LiveClientMessage{Setup: g.setup()}
	if err := conn.writeJSON(ctx, setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("live/gemini: send setup: %w", err)
	}

	for {
		data, err := conn.read(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		var msg genai.LiveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Close()
			return nil, live.NewError(live.KindProtocol, "setup", err)
		}
		if msg.SetupComplete != nil {
			g.log.Debug("setup complete", "session", info.ID, "model", g.config.Model)
			return conn, nil
		}
	}
}

func (g *Gemini) setup() *genai.LiveClientSetup {
	setup := &genai.LiveClientSetup{
		Model: g.config.Model,
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: []genai.Modality{genai.ModalityText},
		},
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{updateParticlesDeclaration()},
		}},
	}
	if g.config.SystemPrompt != "" {
		setup.SystemInstruction = genai.NewContentFromText(g.config.SystemPrompt, genai.RoleUser)
	}
	return setup
}

func updateParticlesDeclaration() *genai.FunctionDeclaration {
	shapes := make([]string, 0, len(particles.Shapes()))
	for _, s := range particles.Shapes() {
		shapes = append(shapes, string(s))
	}
	palettes := make([]string, 0, len(particles.Palettes()))
	for _, p := range particles.Palettes() {
		palettes = append(palettes, string(p))
	}

	return &genai.FunctionDeclaration{
		Name:        UpdateParticlesFunction,
		Description: "Change the particle visualization. Only include the fields that should change.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"shape": {
					Type: genai.TypeString,
					Enum: shapes,
				},
				"color_palette": {
					Type: genai.TypeString,
					Enum: palettes,
				},
				"expansion": {
					Type:    genai.TypeNumber,
					Minimum: genai.Ptr(particles.MinExpansion),
					Maximum: genai.Ptr(particles.MaxExpansion),
				},
				"speed": {
					Type:    genai.TypeNumber,
					Minimum: genai.Ptr(particles.MinSpeed),
					Maximum: genai.Ptr(particles.MaxSpeed),
				},
				"rotation_speed": {
					Type:        genai.TypeNumber,
					Description: "Negative values spin the other way.",
					Minimum:     genai.Ptr(particles.MinRotationSpeed),
					Maximum:     genai.Ptr(particles.MaxRotationSpeed),
				},
			},
		},
	}
}

// realtimeInput carries the frame's base64 text through unchanged.
// genai.Blob holds raw bytes and would force a decode and re-encode.
type realtimeInput struct {
	RealtimeInput struct {
		MediaChunks []mediaChunk `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiConn struct {
	*wsConn
	log   *slog.Logger
	debug bool
}

func (c *geminiConn) Send(ctx context.Context, f live.Frame) error {
	mime := f.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	var msg realtimeInput
	msg.RealtimeInput.MediaChunks = []mediaChunk{{MIMEType: mime, Data: f.Data}}
	return c.writeJSON(ctx, msg)
}

// Receive skips messages that carry nothing for the visualization, such as
// turn boundaries, usage metadata and free text.
func (c *geminiConn) Receive(ctx context.Context) (live.Message, error) {
	for {
		data, err := c.read(ctx)
		if err != nil {
			return live.Message{}, err
		}

		var msg genai.LiveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return live.Message{}, live.NewError(live.KindProtocol, "decode", err)
		}

		switch {
		case msg.ToolCall != nil:
			u, err := c.handleToolCall(ctx, msg.ToolCall)
			if err != nil {
				return live.Message{}, err
			}
			return live.Message{Type: live.MessageStateUpdate, Fields: u}, nil

		case msg.ServerContent != nil && msg.ServerContent.ModelTurn != nil:
			if u, ok := updateFromText(msg.ServerContent.ModelTurn); ok {
				return live.Message{Type: live.MessageStateUpdate, Fields: u}, nil
			}

		case msg.GoAway != nil:
			return live.Message{Type: live.MessageError, Reason: "server going away"}, nil
		}

		if c.debug {
			c.log.Debug("skipped message", "bytes", len(data))
		}
	}
}

// handleToolCall folds every update_particles call into one update and
// acknowledges the calls.
func (c *geminiConn) handleToolCall(ctx context.Context, call *genai.LiveServerToolCall) (particles.Update, error) {
	var (
		merged    particles.Update
		responses []*genai.FunctionResponse
	)

	for _, fc := range call.FunctionCalls {
		if fc == nil {
			continue
		}
		if fc.Name != UpdateParticlesFunction {
			return particles.Update{}, live.Errorf(live.KindProtocol, "tool call", "unknown function %q", fc.Name)
		}
		u, err := particles.DecodeUpdate(fc.Args)
		if err != nil {
			return particles.Update{}, live.NewError(live.KindProtocol, "tool call", err)
		}
		merged = combine(merged, u)
		responses = append(responses, &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: map[string]any{"output": "applied"},
		})
	}

	if len(responses) > 0 {
		ack := &genai.LiveClientMessage{
			ToolResponse: &genai.LiveClientToolResponse{FunctionResponses: responses},
		}
		if err := c.writeJSON(ctx, ack); err != nil {
			return particles.Update{}, fmt.Errorf("live/gemini: tool response: %w", err)
		}
	}
	return merged, nil
}

// updateFromText extracts a JSON object from the model's text parts.
func updateFromText(content *genai.Content) (particles.Update, bool) {
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return particles.Update{}, false
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return particles.Update{}, false
	}
	u, err := particles.DecodeUpdate(fields)
	if err != nil || u.IsEmpty() {
		return particles.Update{}, false
	}
	return u, true
}

// combine overlays b on a.
func combine(a, b particles.Update) particles.Update {
	if b.Shape != nil {
		a.Shape = b.Shape
	}
	if b.Expansion != nil {
		a.Expansion = b.Expansion
	}
	if b.ColorPalette != nil {
		a.ColorPalette = b.ColorPalette
	}
	if b.Speed != nil {
		a.Speed = b.Speed
	}
	if b.RotationSpeed != nil {
		a.RotationSpeed = b.RotationSpeed
	}
	return a
}

var _ live.Transport = (*Gemini)(nil)

// Register Gemini provider in live package.
func init() {
	live.Register(live.ProviderGemini, func(cfg live.Config) (live.Transport, error) {
		return NewGemini(cfg)
	})
}
