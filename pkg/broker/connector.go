package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/harun/pagebroker/pkg/page"
)

// stealthScript neutralizes the obvious automation-detection signals on every
// document in a context we create.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.navigator.chrome = {runtime: {}};
`

// Conn is a resolved connection into a running browser: the rod client, the
// chosen visible page, and the id of the browsing context the page lives in.
type Conn struct {
	Browser   *rod.Browser
	Page      *rod.Page
	ContextID string
}

// Handle returns the restricted automation façade for the chosen page.
func (c *Conn) Handle() *page.Handle {
	return page.NewHandle(c.Page)
}

// Connector connects to a browser over its remote debugging endpoint and
// resolves which browsing context and page to reuse.
type Connector struct {
	logger zerolog.Logger
}

// NewConnector creates a connector.
func NewConnector(logger zerolog.Logger) *Connector {
	return &Connector{logger: logger}
}

// Connect opens the debugging connection and picks a context and page.
// taggedContextID is the context id persisted by a previous caller, or empty.
//
// Context selection: prefer the tagged context; else reuse a sole existing
// context; else create a fresh context with anti-detection initialization.
// Page selection: most recent non-blank page in the chosen context, else the
// first page, else a new page. Calling twice without intervening automation
// resolves to the same visible page.
func (c *Connector) Connect(ctx context.Context, endpoint, taggedContextID string) (*Conn, error) {
	browser := rod.New().Context(ctx).ControlURL(endpoint)
	if err := browser.Connect(); err != nil {
		return nil, &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Failed to connect to %s: %v", endpoint, err),
		}
	}

	targets, err := proto.TargetGetTargets{}.Call(browser)
	if err != nil {
		_ = browser.Close()
		return nil, &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Failed to list targets: %v", err),
		}
	}

	pages := pageTargets(targets.TargetInfos)
	contextID, created, err := c.selectContext(browser, pages, taggedContextID)
	if err != nil {
		_ = browser.Close()
		return nil, err
	}

	p, err := c.selectPage(browser, pages, contextID, created)
	if err != nil {
		_ = browser.Close()
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("context_id", contextID).
		Str("target_id", string(p.TargetID)).
		Msg("connected to browser session")

	return &Conn{Browser: browser, Page: p, ContextID: contextID}, nil
}

// pageTargets filters target infos down to ordinary pages.
func pageTargets(infos []*proto.TargetTargetInfo) []*proto.TargetTargetInfo {
	out := make([]*proto.TargetTargetInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			out = append(out, info)
		}
	}
	return out
}

// selectContext picks the browsing context to use. Returns its id and whether
// it was freshly created.
func (c *Connector) selectContext(browser *rod.Browser, pages []*proto.TargetTargetInfo, tagged string) (string, bool, error) {
	seen := make(map[string]bool)
	contexts := make([]string, 0, 4)
	for _, info := range pages {
		id := string(info.BrowserContextID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		contexts = append(contexts, id)
	}

	if tagged != "" && seen[tagged] {
		return tagged, false, nil
	}

	if len(contexts) == 1 {
		c.logger.Debug().Str("context_id", contexts[0]).Msg("reusing the sole existing browsing context")
		return contexts[0], false, nil
	}

	result, err := proto.TargetCreateBrowserContext{}.Call(browser)
	if err != nil {
		return "", false, &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Failed to create browsing context: %v", err),
		}
	}

	return string(result.BrowserContextID), true, nil
}

// selectPage picks the visible page within the chosen context, creating one
// when the context has none.
func (c *Connector) selectPage(browser *rod.Browser, pages []*proto.TargetTargetInfo, contextID string, freshContext bool) (*rod.Page, error) {
	var inContext []*proto.TargetTargetInfo
	for _, info := range pages {
		if string(info.BrowserContextID) == contextID {
			inContext = append(inContext, info)
		}
	}

	// Newest non-blank page wins: automation steps come from many separate
	// process invocations, and losing the current page would silently reset
	// navigation state.
	for i := len(inContext) - 1; i >= 0; i-- {
		if !blankURL(inContext[i].URL) {
			return c.attach(browser, inContext[i].TargetID)
		}
	}

	if len(inContext) > 0 {
		return c.attach(browser, inContext[0].TargetID)
	}

	p, err := browser.Page(proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: proto.BrowserBrowserContextID(contextID),
	})
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Failed to create page: %v", err),
		}
	}

	if freshContext {
		if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: stealthScript}).Call(p); err != nil {
			c.logger.Warn().Err(err).Msg("failed to install anti-detection script")
		}
	}

	return p, nil
}

// attach binds to an existing target by id.
func (c *Connector) attach(browser *rod.Browser, targetID proto.TargetTargetID) (*rod.Page, error) {
	p, err := browser.PageFromTarget(targetID)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Failed to attach to page %s: %v", targetID, err),
		}
	}
	return p, nil
}

// blankURL reports whether a URL carries no navigation state worth keeping.
func blankURL(url string) bool {
	return url == "" ||
		url == "about:blank" ||
		strings.HasPrefix(url, "chrome://") ||
		strings.HasPrefix(url, "devtools://")
}
