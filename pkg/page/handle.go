// Package page exposes the restricted automation surface handed to generated
// code. A Handle can navigate, interact, and extract; it deliberately has no
// process or lifecycle methods, so code driving a Handle cannot tear down the
// shared browser session.
package page

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Error is the page interaction error type
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes
const (
	ErrCodeNavigation      = "NAVIGATION_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeScriptExecution = "SCRIPT_EXECUTION_ERROR"
)

// Handle is a live view onto the shared session's visible tab.
type Handle struct {
	page *rod.Page
}

// NewHandle wraps a rod page.
func NewHandle(p *rod.Page) *Handle {
	return &Handle{page: p}
}

// TargetID returns the page's CDP target id.
func (h *Handle) TargetID() string {
	return string(h.page.TargetID)
}

// URL returns the page's current URL.
func (h *Handle) URL() (string, error) {
	info, err := h.page.Info()
	if err != nil {
		return "", &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to read page info: %v", err),
		}
	}
	return info.URL, nil
}

// Title returns the page's current title.
func (h *Handle) Title() (string, error) {
	info, err := h.page.Info()
	if err != nil {
		return "", &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to read page info: %v", err),
		}
	}
	return info.Title, nil
}

// Navigate loads a URL and waits for the load event, retrying up to 3 times
// with exponential backoff.
func (h *Handle) Navigate(url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		page := h.page.Timeout(timeout)

		if err := page.Navigate(url); err != nil {
			lastErr = err
			if attempt < 3 {
				time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
				continue
			}
			return &Error{
				Code:    ErrCodeNavigation,
				Message: fmt.Sprintf("Failed to navigate to %s after 3 attempts: %v", url, err),
			}
		}

		if err := page.WaitLoad(); err != nil {
			lastErr = err
			if attempt < 3 {
				time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
				continue
			}
			return &Error{
				Code:    ErrCodeTimeout,
				Message: fmt.Sprintf("Page load timeout: %v", err),
			}
		}

		return nil
	}

	return &Error{
		Code:    ErrCodeNavigation,
		Message: fmt.Sprintf("Navigation failed: %v", lastErr),
	}
}

// Back navigates back in history.
func (h *Handle) Back(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := h.page.Timeout(timeout).NavigateBack(); err != nil {
		return &Error{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Failed to navigate back: %v", err),
		}
	}
	return nil
}

// Forward navigates forward in history.
func (h *Handle) Forward(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := h.page.Timeout(timeout).NavigateForward(); err != nil {
		return &Error{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Failed to navigate forward: %v", err),
		}
	}
	return nil
}

// Reload reloads the current page.
func (h *Handle) Reload() error {
	if err := h.page.Reload(); err != nil {
		return &Error{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Failed to reload page: %v", err),
		}
	}
	return nil
}

// Click clicks the first element matching the selector.
func (h *Handle) Click(selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	elem, err := h.page.Timeout(timeout).Element(selector)
	if err != nil {
		return &Error{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Element not found: %s", selector),
		}
	}

	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to click element: %v", err),
		}
	}
	return nil
}

// Type types text into the first element matching the selector.
func (h *Handle) Type(selector, value string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	elem, err := h.page.Timeout(timeout).Element(selector)
	if err != nil {
		return &Error{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Element not found: %s", selector),
		}
	}

	if err := elem.Input(value); err != nil {
		return &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to type into element: %v", err),
		}
	}
	return nil
}

// Select selects a dropdown option by visible text.
func (h *Handle) Select(selector, value string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	elem, err := h.page.Timeout(timeout).Element(selector)
	if err != nil {
		return &Error{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Element not found: %s", selector),
		}
	}

	if err := elem.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to select option: %v", err),
		}
	}
	return nil
}

// WaitVisible waits until an element matching the selector is present.
func (h *Handle) WaitVisible(selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if _, err := h.page.Timeout(timeout).Element(selector); err != nil {
		return &Error{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Element not found: %s", selector),
			Details: map[string]interface{}{
				"selector": selector,
				"timeout":  timeout.String(),
			},
		}
	}
	return nil
}

// Eval executes a JavaScript function string on the page and returns its value.
func (h *Handle) Eval(script string, args ...interface{}) (interface{}, error) {
	result, err := h.page.Eval(script, args...)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Script execution failed: %v", err),
		}
	}
	return result.Value.Val(), nil
}

// HTML returns the page's HTML content.
func (h *Handle) HTML() (string, error) {
	html, err := h.page.HTML()
	if err != nil {
		return "", &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to extract HTML: %v", err),
		}
	}
	return html, nil
}

// Text returns the page's visible text without tags.
func (h *Handle) Text() (string, error) {
	text, err := h.page.Eval(`() => document.body.innerText`)
	if err != nil {
		return "", &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to extract text: %v", err),
		}
	}
	return text.Value.String(), nil
}

// Screenshot captures the viewport, or the full page when fullPage is set.
func (h *Handle) Screenshot(fullPage bool) ([]byte, error) {
	data, err := h.page.Screenshot(fullPage, nil)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeScriptExecution,
			Message: fmt.Sprintf("Failed to capture screenshot: %v", err),
		}
	}
	return data, nil
}
