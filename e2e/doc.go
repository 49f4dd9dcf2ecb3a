//go:build e2e

// Package e2e runs the PPG interop page in headless Chrome.
//
// The tests are behind the e2e build tag because they download and launch a
// browser:
//
//	go test -tags=e2e ./e2e/...
//
// Each test starts its own ppg-interop server on a free port and its own
// browser through testutil.BrowserClient. Web Bluetooth needs a real suit and
// a user gesture, so the tests drive the page's synthetic pulse source, which
// sends the same SmartSuit frame format over the same data channel.
package e2e
