// Package popup opens the widget in the user's browser.
package popup

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/logger"
)

// Popup is the handle of an opened widget window.
type Popup struct {
	Name     string
	URL      string
	AppName  string
	OpenedAt time.Time
}

// Opener opens a widget URL in a new window named name.
type Opener interface {
	Open(ctx context.Context, appName, url, name string) (*Popup, error)
}

// BrowserOpener opens windows with the system browser.
type BrowserOpener struct {
	openURL func(string) error
	log     *zap.Logger
	now     func() time.Time
}

// Option configures a BrowserOpener.
type Option func(*BrowserOpener)

// WithOpenFunc replaces the function that launches the browser.
func WithOpenFunc(fn func(url string) error) Option {
	return func(o *BrowserOpener) { o.openURL = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *BrowserOpener) { o.log = logger.OrNop(l) }
}

// NewBrowserOpener creates an opener backed by the system browser.
func NewBrowserOpener(opts ...Option) *BrowserOpener {
	o := &BrowserOpener{
		openURL: browser.OpenURL,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open launches url. The window name identifies the popup in logs.
func (o *BrowserOpener) Open(ctx context.Context, appName, url, name string) (*Popup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.openURL(url); err != nil {
		return nil, fmt.Errorf("could not open browser: %w", err)
	}
	o.log.Info("popup opened", logger.App(appName), zap.String("window", name))
	return &Popup{Name: name, URL: url, AppName: appName, OpenedAt: o.now()}, nil
}
