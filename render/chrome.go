package render

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"e2p/config"
)

// Chrome prints HTML using headless Chrome. Browser is started on first use
// and kept for subsequent documents until Close.
type Chrome struct {
	cfg *config.RendererConfig
	log *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func NewChrome(cfg *config.RendererConfig, log *zap.Logger) *Chrome {
	return &Chrome{cfg: cfg, log: log.Named("chrome")}
}

func (c *Chrome) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	err := retry.Do(
		func() error {
			l := launcher.New().NoSandbox(c.cfg.NoSandbox)
			if len(c.cfg.BrowserBin) > 0 {
				l = l.Bin(c.cfg.BrowserBin)
			}
			u, err := l.Launch()
			if err != nil {
				l.Cleanup()
				return err
			}
			b := rod.New().ControlURL(u)
			if err := b.Connect(); err != nil {
				l.Kill()
				l.Cleanup()
				return err
			}
			c.launcher, c.browser = l, b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.LaunchAttempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Unable to start browser, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	c.log.Debug("Browser started", zap.String("bin", c.cfg.BrowserBin))
	return c.browser, nil
}

// PDF loads local HTML file and prints it honoring CSS page settings.
func (c *Chrome) PDF(ctx context.Context, htmlPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := c.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	target := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: target.String()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.log.Debug("Unable to close page", zap.Error(err))
		}
	}()

	if err := page.Timeout(c.cfg.Timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := page.Timeout(c.cfg.Timeout).PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}
	return data, nil
}

// Close stops browser if it was started.
func (c *Chrome) Close() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		err = multierr.Append(err, c.browser.Close())
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Kill()
		c.launcher.Cleanup()
		c.launcher = nil
	}
	return err
}
