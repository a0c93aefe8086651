package cdpilot

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/mailru/easyjson"
)

// NavigateAction is the category of Action that triggers a page navigation.
// Navigate and Reload also wait for it to finish loading;
// NavigateToHistoryEntry, NavigateBack and NavigateForward return once the
// browser has accepted the command, without waiting for the load.
type NavigateAction Action

// Navigate navigates the Context's current page to urlstr and waits for
// its "load" lifecycle event to fire on a fresh document.
func Navigate(urlstr string) NavigateAction {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		h := c.Browser.Handler()

		raw, err := h.Execute(ctx, c.SessionID, cdproto.CommandPageNavigate, &page.NavigateParams{URL: urlstr})
		if err != nil {
			return err
		}
		var ret page.NavigateReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "navigate result: %v", err)
		}
		if ret.ErrorText != "" {
			return fmt.Errorf("cdpilot: page load error %s", ret.ErrorText)
		}
		return h.WaitForNavigation(ctx, c.SessionID, ret.FrameID, "load")
	})
}

// NavigationEntries retrieves the page's navigation history.
func NavigationEntries(currentIndex *int64, entries *[]*page.NavigationEntry) Action {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandPageGetNavigationHistory, nil)
		if err != nil {
			return err
		}
		var ret page.GetNavigationHistoryReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "navigation history: %v", err)
		}
		*currentIndex, *entries = ret.CurrentIndex, ret.Entries
		return nil
	})
}

// NavigateToHistoryEntry navigates to a specific history entry id.
func NavigateToHistoryEntry(entryID int64) NavigateAction {
	return simpleCommand(cdproto.CommandPageNavigateToHistoryEntry, &page.NavigateToHistoryEntryParams{EntryID: entryID})
}

// NavigateBack navigates the current frame back one step in its history.
func NavigateBack() NavigateAction {
	return ActionFunc(func(ctx context.Context) error {
		var cur int64
		var entries []*page.NavigationEntry
		if err := NavigationEntries(&cur, &entries).Do(ctx); err != nil {
			return err
		}
		if cur <= 0 || cur > int64(len(entries)-1) {
			return fmt.Errorf("cdpilot: no previous navigation entry")
		}
		return NavigateToHistoryEntry(entries[cur-1].ID).Do(ctx)
	})
}

// NavigateForward navigates the current frame forward one step in its
// history.
func NavigateForward() NavigateAction {
	return ActionFunc(func(ctx context.Context) error {
		var cur int64
		var entries []*page.NavigationEntry
		if err := NavigationEntries(&cur, &entries).Do(ctx); err != nil {
			return err
		}
		if cur < 0 || cur >= int64(len(entries)-1) {
			return fmt.Errorf("cdpilot: no next navigation entry")
		}
		return NavigateToHistoryEntry(entries[cur+1].ID).Do(ctx)
	})
}

// Reload reloads the current page and waits for it to finish loading.
func Reload() NavigateAction {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		h := c.Browser.Handler()
		if _, err := h.Execute(ctx, c.SessionID, cdproto.CommandPageReload, &page.ReloadParams{}); err != nil {
			return err
		}
		frameID, err := h.MainFrameID(ctx, c.SessionID)
		if err != nil {
			return err
		}
		return h.WaitForNavigation(ctx, c.SessionID, frameID, "load")
	})
}

// Stop stops all navigation and pending resource retrieval on the page.
func Stop() Action {
	return simpleCommand(cdproto.CommandPageStopLoading, nil)
}

// CaptureScreenshot captures the current viewport as a PNG into res.
func CaptureScreenshot(res *[]byte) Action {
	return ActionFunc(func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		raw, err := c.Browser.Handler().Execute(ctx, c.SessionID, cdproto.CommandPageCaptureScreenshot, &page.CaptureScreenshotParams{})
		if err != nil {
			return err
		}
		var ret page.CaptureScreenshotReturns
		if err := easyjson.Unmarshal(raw, &ret); err != nil {
			return wrapf(ErrDeserializeFailed, "screenshot result: %v", err)
		}
		*res = ret.Data
		return nil
	})
}

// Location retrieves the document's current location.
func Location(urlstr *string) Action {
	return EvaluateAsDevTools(`document.location.toString()`, urlstr)
}

// Title retrieves the document's title.
func Title(title *string) Action {
	return EvaluateAsDevTools(`document.title`, title)
}

// simpleCommand builds an Action that fires a CDP command against the
// current session and ignores its result.
func simpleCommand(method cdproto.MethodType, params easyjson.Marshaler) ActionFunc {
	return func(ctx context.Context) error {
		c := FromContext(ctx)
		if c == nil || c.Browser == nil || c.SessionID == "" {
			return ErrInvalidContext
		}
		_, err := c.Browser.Handler().Execute(ctx, c.SessionID, method, params)
		return err
	}
}
