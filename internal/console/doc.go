// Package console is the operator surface of the station.
//
// It speaks JSON-RPC 2.0 over a pair of streams, normally stdin and stdout,
// so any display process can drive the station: show status, pick the part,
// start a manual capture and forward scanner keystrokes.
//
// # Protocol
//
//   - Input: one JSON-RPC request per line
//   - Output: one JSON-RPC response or notification per line
//
// Methods:
//   - ping: Health check
//   - methods/list: Enumerate methods and their parameters
//   - status: Current cycle state, selected part and last result
//   - parts/list: Part codes and their limits
//   - part/select: Make a part active ({"code": "A7"})
//   - capture: Start a cycle as if the controller had triggered it
//   - scan: Feed scanner input to the open confirmation ({"text": "..."})
//   - scan/cancel: Abandon the open confirmation
//   - config/get: The live configuration snapshot
//   - config/region: Move or resize one region ({"slot": "weight1", "x": 56, ...})
//   - config/threshold: Set the OCR confidence threshold ({"threshold": 0.6})
//
// Notifications, pushed as they happen:
//   - cycle/state: {"cycle_id": "...", "state": "printing"}
//   - cycle/result: the finished cycle's capture.Result
//
// # Error Handling
//
// Failures are returned as JSON-RPC errors with code -32601 (unknown
// method), -32602 (bad parameters) or -32000 (the station refused or failed),
// and the error string in data.
//
// # Usage
//
//	con := console.New(orchestrator, db, cfgStore)
//	if err := con.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package console
