// Package uiop runs browser interactions through the resilience executor.
// The browser automation library is abstracted behind Driver and Element so that
// lookups and clicks share one retry loop instead of each call site owning its own.
package uiop

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotInteractable is returned when an element exists but is hidden or disabled.
var ErrNotInteractable = errors.New("element is not visible or not enabled")

// Strategy names how a Locator's value is interpreted.
type Strategy string

const (
	ByXPath Strategy = "xpath"
	ByCSS   Strategy = "css selector"
	ByID    Strategy = "id"
)

// Locator identifies an element on the current page.
type Locator struct {
	Strategy Strategy
	Value    string
}

// XPath returns a locator for an XPath expression.
func XPath(expr string) Locator {
	return Locator{Strategy: ByXPath, Value: expr}
}

// CSS returns a locator for a CSS selector.
func CSS(selector string) Locator {
	return Locator{Strategy: ByCSS, Value: selector}
}

// ID returns a locator for an element id.
func ID(id string) Locator {
	return Locator{Strategy: ByID, Value: id}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Element is a handle to a located element.
type Element interface {
	Click(ctx context.Context) error
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
}

// Driver is the subset of a browser session the runner needs.
type Driver interface {
	FindElement(ctx context.Context, loc Locator) (Element, error)
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)
	PageSource(ctx context.Context) (string, error)
}
