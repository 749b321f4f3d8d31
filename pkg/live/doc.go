// Package live streams camera frames to a remote gesture-inference service and
// delivers the partial particle updates it sends back.
//
// A Client owns at most one session at a time. A session moves through
// Idle, Connecting, Active and Closed, and the Client can be reused for a new
// session once the previous one is Closed.
//
// # Transports
//
// The wire protocol lives behind the Transport interface. Bundled transports
// register themselves by provider name:
//
//   - gemini: Google's Gemini Live BidiGenerateContent websocket
//   - relay: a websocket relay speaking the compact frame/state-update protocol
//
// Import the bundled package for its side effects:
//
//	import _ "github.com/teslashibe/go-gesture/pkg/live/bundled"
//
// # Usage
//
//	transport, err := live.NewTransport(live.DefaultConfig().WithAPIKey(key))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := live.NewClient(transport)
//	client.OnStateUpdate(func(u particles.Update) {
//	    store.Apply(u)
//	})
//	client.OnError(func(err error) {
//	    fmt.Println("session closed:", live.Reason(err))
//	})
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	client.SendFrame(live.Frame{Data: jpegBase64, MIMEType: "image/jpeg"})
//
// # Delivery rules
//
// SendFrame never blocks and never queues: outside an Active session, or when
// the writer is still busy with the previous frame, the frame is dropped.
// Inbound updates are delivered in arrival order. Once Disconnect returns no
// callback fires for that session.
package live
