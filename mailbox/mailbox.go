// Package mailbox wraps the IMAP connection: dial, search, fetch, flag, and
// the IDLE wait. It exposes raw messages and an update notification channel;
// everything above it is protocol-agnostic.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mail2site/mail2site/model"
)

const dialAttempts = 3

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
}

// Client is a single authenticated IMAP session. It is not safe for
// concurrent use; the monitor owns one client per goroutine.
type Client struct {
	opts    Options
	logger  *slog.Logger
	client  *imapclient.Client
	updates chan struct{}
}

// Connect dials, logs in, and selects the configured folder. Dialing is
// retried a few times before giving up; the caller applies its own backoff
// between Connect calls.
func Connect(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}

	c := &Client{
		opts:    opts,
		logger:  logger,
		updates: make(chan struct{}, 1),
	}

	err := retry.Retry(func() error {
		return c.dial()
	}, dialAttempts, func(err error) error {
		if logger != nil {
			logger.Warn("imap dial failed, retrying", "host", opts.Host, "err", err)
		}
		return nil
	}, func() error {
		time.Sleep(2 * time.Second)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.selectFolder(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) dial() error {
	address := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				// Coalescing send: a pending notification already covers
				// this update.
				select {
				case c.updates <- struct{}{}:
				default:
				}
			},
		},
	}
	if c.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         c.opts.Host,
			InsecureSkipVerify: c.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	if c.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("imap login failed: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("imap connection established", "address", address, "user", c.opts.Username, "tls", c.opts.UseTLS)
	}
	c.client = client
	return nil
}

func (c *Client) selectFolder() error {
	folder := c.opts.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", folder, err)
	}
	return nil
}

// Updates delivers a signal whenever the server reports new mail during an
// IDLE wait. The channel is never closed; it coalesces bursts into a single
// pending signal.
func (c *Client) Updates() <-chan struct{} {
	return c.updates
}

// SearchSince returns the UIDs of messages from sender received on or after
// since, oldest first.
func (c *Client) SearchSince(sender string, since time.Time) ([]uint32, error) {
	criteria := &imapv2.SearchCriteria{Since: since}
	if sender != "" {
		criteria.Header = []imapv2.SearchCriteriaHeaderField{{Key: "From", Value: sender}}
	}

	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

// Fetch downloads the full raw message for a UID along with its envelope.
func (c *Client) Fetch(uid uint32) (model.RawMessage, error) {
	section := &imapv2.FetchItemBodySection{}
	options := &imapv2.FetchOptions{
		Envelope:     true,
		InternalDate: true,
		UID:          true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}

	messages, err := c.client.Fetch(imapv2.UIDSetNum(imapv2.UID(uid)), options).Collect()
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if len(messages) == 0 {
		return model.RawMessage{}, fmt.Errorf("fetch uid %d: no data returned", uid)
	}

	buf := messages[0]
	raw := buf.FindBodySection(section)
	if len(raw) == 0 {
		return model.RawMessage{}, fmt.Errorf("fetch uid %d: empty body", uid)
	}

	msg := model.RawMessage{
		Folder:     c.folderName(),
		UID:        uid,
		ReceivedAt: buf.InternalDate,
		Raw:        raw,
	}
	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			msg.Sender = buf.Envelope.From[0].Addr()
		}
	}
	return msg, nil
}

// MarkSeen sets the \Seen flag on a message.
func (c *Client) MarkSeen(uid uint32) error {
	flags := &imapv2.StoreFlags{
		Op:     imapv2.StoreFlagsAdd,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagSeen},
	}
	if err := c.client.Store(imapv2.UIDSetNum(imapv2.UID(uid)), flags, nil).Close(); err != nil {
		return fmt.Errorf("store \\Seen on uid %d: %w", uid, err)
	}
	return nil
}

// Idle holds an IDLE wait until ctx is done or the connection fails. The
// wait is re-issued every refresh interval so servers that cap idle sessions
// never drop the connection silently. Update notifications arrive on the
// Updates channel while idling.
func (c *Client) Idle(ctx context.Context, refresh time.Duration) error {
	for {
		cmd, err := c.client.Idle()
		if err != nil {
			return fmt.Errorf("start idle: %w", err)
		}

		timer := time.NewTimer(refresh)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = cmd.Close()
			_ = cmd.Wait()
			return ctx.Err()
		case <-timer.C:
			if err := cmd.Close(); err != nil {
				return fmt.Errorf("refresh idle: %w", err)
			}
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("refresh idle: %w", err)
			}
			if c.logger != nil {
				c.logger.Debug("idle refreshed", "refresh", refresh)
			}
		}
	}
}

// Close logs out when possible and tears the connection down.
func (c *Client) Close() {
	if c.client == nil {
		return
	}
	if err := c.client.Logout().Wait(); err != nil && c.logger != nil {
		c.logger.Debug("imap logout failed", "err", err)
	}
	if err := c.client.Close(); err != nil && c.logger != nil {
		c.logger.Debug("imap connection closed", "err", err)
	}
	c.client = nil
}

func (c *Client) folderName() string {
	if c.opts.Folder == "" {
		return "INBOX"
	}
	return c.opts.Folder
}
