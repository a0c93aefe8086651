// Package cdpilot is a high level, asynchronous Chrome DevTools Protocol
// (CDP) client for driving Chromium-family browsers: launching or attaching
// to a browser process, multiplexing a single WebSocket connection across
// many concurrent callers and targets, tracking target/session/frame/
// execution-context lifecycle from the browser's event stream, and exposing
// typed commands and events on top of github.com/chromedp/cdproto.
//
// The core is the Handler: a single-owner event loop that is the only
// writer to the transport and the only mutator of the command registry,
// event router and target registry. Everything else — Browser, Context,
// Page, Element — holds only opaque ids and a request-queue handle into the
// Handler.
package cdpilot
