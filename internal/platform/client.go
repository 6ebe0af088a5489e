// Package platform is the Platform Gateway (C1, spec.md §4.1): the only code
// in the process that speaks to Twitch over the network for control-plane
// calls (PubSub connects through its own package). It wraps the teacher's
// persisted-query GQL calling convention in a typed facade with retries,
// jitter, and a global in-flight cap.
package platform

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/twitch-miner/predictor/internal/auth"
	"github.com/twitch-miner/predictor/internal/constants"
	"github.com/twitch-miner/predictor/internal/errs"
	"github.com/twitch-miner/predictor/internal/store"
)

// Client is the Platform Gateway. One Client is shared by every streamer
// goroutine; inFlight bounds total concurrent HTTP calls across all of them
// (spec.md §4.1 "in-flight request cap").
type Client struct {
	auth          *auth.TwitchAuth
	deviceID      string
	clientSession string
	clientVersion string
	http          *http.Client
	inFlight      chan struct{}
	spade         *spadeCache
	gqlURL        string

	spadeURLPattern    *regexp.Regexp
	settingsURLPattern *regexp.Regexp
}

func New(twitchAuth *auth.TwitchAuth, deviceID string) *Client {
	return &Client{
		auth:          twitchAuth,
		deviceID:      deviceID,
		clientSession: randomHex(16),
		clientVersion: constants.DefaultClientVersion,
		http:          &http.Client{Timeout: 15 * time.Second},
		inFlight:      make(chan struct{}, constants.GatewayInFlightCap),
		spade:         newSpadeCache(),
		gqlURL:        constants.GQLURL,

		spadeURLPattern:    regexp.MustCompile(`"spade_url":"(.*?)"`),
		settingsURLPattern: regexp.MustCompile(`(https://static.twitchcdn.net/config/settings.*?js|https://assets.twitch.tv/config/settings.*?.js)`),
	}
}

func randomHex(n int) string {
	b := make([]byte, n/2)
	_, _ = io.ReadFull(rand.Reader, b)
	return hex.EncodeToString(b)
}

// postGQL sends one persisted-query operation, retrying transient failures
// with jittered backoff up to constants.GatewayRetryMax times (spec.md §4.1,
// §7 retry policy). It blocks on the in-flight semaphore first.
func (c *Client) postGQL(ctx context.Context, op constants.GQLOperation) (map[string]interface{}, error) {
	select {
	case c.inFlight <- struct{}{}:
	case <-ctx.Done():
		return nil, errs.New(errs.KindTransport, "postGQL", ctx.Err())
	}
	defer func() { <-c.inFlight }()

	var lastErr error
	for attempt := 0; attempt <= constants.GatewayRetryMax; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errs.New(errs.KindTransport, "postGQL", ctx.Err())
			}
		}

		result, retryable, err := c.postGQLOnce(ctx, op)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		slog.Debug("gateway request failed, retrying", "operation", op.OperationName, "attempt", attempt, "error", err)
	}

	return nil, lastErr
}

func backoffDelay(attempt int) time.Duration {
	base := float64(constants.GatewayRetryBase) * math.Pow(2, float64(attempt-1))
	if base > float64(constants.GatewayRetryCap) {
		base = float64(constants.GatewayRetryCap)
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(base)))
	return time.Duration(base/2) + time.Duration(n.Int64())
}

func (c *Client) postGQLOnce(ctx context.Context, op constants.GQLOperation) (map[string]interface{}, bool, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, false, errs.New(errs.KindInternal, "marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, errs.New(errs.KindInternal, "new request", err)
	}
	c.setGQLHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, errs.New(errs.KindTransport, op.OperationName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errs.New(errs.KindTransport, op.OperationName, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, errs.New(errs.KindAuth, op.OperationName, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, errs.New(errs.KindRateLimited, op.OperationName, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, true, errs.New(errs.KindTransport, op.OperationName, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, false, errs.New(errs.KindSemantic, op.OperationName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, false, errs.New(errs.KindInternal, op.OperationName, err)
	}

	slog.Debug("gateway response", "operation", op.OperationName, "status", resp.StatusCode)
	return result, false, nil
}

func (c *Client) setGQLHeaders(req *http.Request) {
	req.Header.Set("Authorization", "OAuth "+c.auth.GetAuthToken())
	req.Header.Set("Client-Id", constants.ClientIDTV)
	req.Header.Set("Client-Session-Id", c.clientSession)
	req.Header.Set("Client-Version", c.clientVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.TVUserAgent)
	req.Header.Set("X-Device-Id", c.deviceID)
}

// ResolveChannel turns a channel_name into the numeric channel_id used
// everywhere else in the store (spec.md §4.1 "resolve_channel").
func (c *Client) ResolveChannel(ctx context.Context, channelName string) (string, error) {
	op := constants.GetIDFromLogin.WithVariables(map[string]interface{}{
		"login": strings.ToLower(channelName),
	})

	resp, err := c.postGQL(ctx, op)
	if err != nil {
		return "", err
	}

	user, ok := dig(resp, "data", "user")
	if !ok {
		return "", errs.New(errs.KindNotFound, "ResolveChannel", errs.ErrStreamerNotFound)
	}
	id, _ := user["id"].(string)
	if id == "" {
		return "", errs.New(errs.KindNotFound, "ResolveChannel", errs.ErrStreamerNotFound)
	}
	return id, nil
}

// StreamInfo fetches the current live/offline view of a channel (spec.md
// §4.1 "stream_info").
func (c *Client) StreamInfo(ctx context.Context, channelName string) (store.StreamerInfo, error) {
	op := constants.VideoPlayerStreamInfoOverlayChannel.WithVariables(map[string]interface{}{
		"channel": channelName,
	})

	resp, err := c.postGQL(ctx, op)
	if err != nil {
		return store.StreamerInfo{}, err
	}

	user, ok := dig(resp, "data", "user")
	if !ok {
		return store.StreamerInfo{Live: false}, nil
	}
	stream, ok := asMap(user["stream"])
	if !ok {
		return store.StreamerInfo{Live: false}, nil
	}

	broadcastID, _ := stream["id"].(string)
	game := ""
	if g, ok := asMap(stream["game"]); ok {
		game, _ = g["name"].(string)
	}

	return store.StreamerInfo{Live: true, BroadcastID: broadcastID, Game: game}, nil
}

// ChannelPointsBalance fetches the current points balance and, if present,
// an available bonus claim id (spec.md §4.1 "channel_points_context").
func (c *Client) ChannelPointsBalance(ctx context.Context, channelLogin string) (points int, availableClaimID string, err error) {
	op := constants.ChannelPointsContext.WithVariables(map[string]interface{}{
		"channelLogin": channelLogin,
	})

	resp, postErr := c.postGQL(ctx, op)
	if postErr != nil {
		return 0, "", postErr
	}

	channel, ok := dig(resp, "data", "community", "channel")
	if !ok {
		return 0, "", errs.New(errs.KindNotFound, "ChannelPointsBalance", errs.ErrStreamerNotFound)
	}
	self, ok := asMap(channel["self"])
	if !ok {
		return 0, "", nil
	}
	communityPoints, ok := asMap(self["communityPoints"])
	if !ok {
		return 0, "", nil
	}

	if balance, ok := communityPoints["balance"].(float64); ok {
		points = int(balance)
	}
	if claim, ok := asMap(communityPoints["availableClaim"]); ok {
		availableClaimID, _ = claim["id"].(string)
	}

	return points, availableClaimID, nil
}

// ClaimCommunityPoints redeems an available bonus claim (spec.md §4.1
// "claim_community_points").
func (c *Client) ClaimCommunityPoints(ctx context.Context, channelID, claimID string) error {
	op := constants.ClaimCommunityPoints.WithVariables(map[string]interface{}{
		"input": map[string]interface{}{
			"channelID": channelID,
			"claimID":   claimID,
		},
	})
	_, err := c.postGQL(ctx, op)
	return err
}

// FetchPrediction loads the currently open prediction event for a channel,
// if any (spec.md §4.1 "fetch_prediction").
func (c *Client) FetchPrediction(ctx context.Context, channelLogin string) (*store.Event, error) {
	op := constants.FetchPrediction.WithVariables(map[string]interface{}{
		"channelLogin": channelLogin,
	})

	resp, err := c.postGQL(ctx, op)
	if err != nil {
		return nil, err
	}

	channel, ok := dig(resp, "data", "channel")
	if !ok {
		return nil, nil
	}
	prediction, ok := asMap(channel["community_prediction_event"])
	if !ok || prediction == nil {
		return nil, nil
	}

	return decodePredictionEvent(prediction), nil
}

// PlaceBet places points on a prediction outcome (spec.md §4.1
// "place_bet"). A rejected bet (insufficient balance, event already locked)
// surfaces as a classified *errs.Error.
func (c *Client) PlaceBet(ctx context.Context, eventID, outcomeID string, points int) error {
	op := constants.MakePrediction.WithVariables(map[string]interface{}{
		"input": map[string]interface{}{
			"eventID":       eventID,
			"outcomeID":     outcomeID,
			"points":        points,
			"transactionID": randomHex(16),
		},
	})

	resp, err := c.postGQL(ctx, op)
	if err != nil {
		return err
	}

	if errList, ok := resp["errors"].([]interface{}); ok && len(errList) > 0 {
		return errs.New(errs.KindSemantic, "PlaceBet", fmt.Errorf("platform rejected bet: %v", errList[0]))
	}

	return nil
}

// JoinRaid follows a channel's outgoing raid (spec.md §4.1 "join_raid",
// gated upstream by the streamer's FollowRaid setting).
func (c *Client) JoinRaid(ctx context.Context, raidID string) error {
	op := constants.JoinRaid.WithVariables(map[string]interface{}{
		"input": map[string]interface{}{
			"raidID": raidID,
		},
	})
	_, err := c.postGQL(ctx, op)
	return err
}

func dig(m map[string]interface{}, path ...string) (map[string]interface{}, bool) {
	cur := m
	for _, key := range path {
		next, ok := asMap(cur[key])
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok && m != nil
}
