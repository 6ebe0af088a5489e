package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/twitch-miner/predictor/internal/errs"
)

// spadeCache remembers a channel's analytics beacon URL, scraped once from
// its page HTML the same way the teacher's GetSpadeURL does, so repeated
// heartbeats don't re-scrape every tick.
type spadeCache struct {
	mu   sync.Mutex
	urls map[string]string
}

func newSpadeCache() *spadeCache {
	return &spadeCache{urls: make(map[string]string)}
}

func (c *Client) spadeURL(ctx context.Context, channelName string) (string, error) {
	c.spade.mu.Lock()
	if url, ok := c.spade.urls[channelName]; ok {
		c.spade.mu.Unlock()
		return url, nil
	}
	c.spade.mu.Unlock()

	pageURL := "https://www.twitch.tv/" + channelName
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errs.New(errs.KindInternal, "spadeURL", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/117.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errs.New(errs.KindTransport, "spadeURL", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.New(errs.KindTransport, "spadeURL", err)
	}

	settingsMatches := c.settingsURLPattern.FindSubmatch(body)
	if len(settingsMatches) < 2 {
		return "", errs.New(errs.KindSemantic, "spadeURL", errStreamPageChanged)
	}

	settingsResp, err := c.http.Get(string(settingsMatches[1]))
	if err != nil {
		return "", errs.New(errs.KindTransport, "spadeURL", err)
	}
	defer settingsResp.Body.Close()

	settingsBody, err := io.ReadAll(settingsResp.Body)
	if err != nil {
		return "", errs.New(errs.KindTransport, "spadeURL", err)
	}

	spadeMatches := c.spadeURLPattern.FindSubmatch(settingsBody)
	if len(spadeMatches) < 2 {
		return "", errs.New(errs.KindSemantic, "spadeURL", errStreamPageChanged)
	}

	url := string(spadeMatches[1])
	c.spade.mu.Lock()
	c.spade.urls[channelName] = url
	c.spade.mu.Unlock()

	return url, nil
}

var errStreamPageChanged = fmt.Errorf("could not locate analytics beacon URL on channel page")

// SendWatchHeartbeat emits one minute-watched beacon event for a channel
// (spec.md §4.1 "send_watch_heartbeat(channel_id, broadcast_id)"), sent
// roughly once per 60s scheduler tick per watched channel by the caller (C4).
func (c *Client) SendWatchHeartbeat(ctx context.Context, channelID, channelName, broadcastID string) error {
	url, err := c.spadeURL(ctx, channelName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"event": "minute-watched",
		"properties": map[string]interface{}{
			"channel_id":   channelID,
			"broadcast_id": broadcastID,
			"player":       "site",
			"user_id":      c.auth.GetUserID(),
		},
	}
	encoded, err := json.Marshal([]interface{}{payload})
	if err != nil {
		return errs.New(errs.KindInternal, "SendWatchHeartbeat", err)
	}

	form := "data=" + base64.StdEncoding.EncodeToString(encoded)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(form)))
	if err != nil {
		return errs.New(errs.KindInternal, "SendWatchHeartbeat", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New(errs.KindTransport, "SendWatchHeartbeat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errs.New(errs.KindTransport, "SendWatchHeartbeat", fmt.Errorf("status %d", resp.StatusCode))
	}

	return nil
}
