package constants

import "time"

const (
	TwitchURL      = "https://www.twitch.tv"
	GQLURL         = "https://gql.twitch.tv/gql"
	PubSubURL      = "wss://pubsub-edge.twitch.tv/v1"
	OAuthDeviceURL = "https://id.twitch.tv/oauth2/device"
	OAuthTokenURL  = "https://id.twitch.tv/oauth2/token"
	UsherURL       = "https://usher.ttvnw.net"

	ClientIDTV = "ue6666qo983tsx6so1t0vnawi233wa"

	DefaultClientVersion = "ef928475-9403-42f2-8a34-55784bd08e16"

	TVUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

	// MaxTopicsPerConnection is the platform's hard PubSub limit per connection.
	MaxTopicsPerConnection = 50

	// MaxWatchSlots is the number of channels the watch scheduler heartbeats per tick.
	MaxWatchSlots = 2

	// PingInterval and PingJitter bound the multiplexer's liveness ping cadence.
	PingInterval = 4 * time.Minute
	PingJitter   = 30 * time.Second
	PongTimeout  = 10 * time.Second

	// ReconnectBackoffMin/Max bound the multiplexer's per-connection reconnect delay.
	ReconnectBackoffMin = 1 * time.Second
	ReconnectBackoffMax = 60 * time.Second

	// GatewayRetryBase/Cap/Max bound the platform gateway's retry policy (spec.md §4.1).
	GatewayRetryBase  = 500 * time.Millisecond
	GatewayRetryCap   = 10 * time.Second
	GatewayRetryMax   = 3
	GatewayInFlightCap = 16

	// DecodedEventQueueCapacity bounds the multiplexer's decoded-event output
	// channel (spec.md §4.6 backpressure policy).
	DecodedEventQueueCapacity = 1024

	// AnalyticsQueueCapacity bounds the analytics writer's inbound row channel
	// (spec.md §4.7 backpressure policy).
	AnalyticsQueueCapacity = 4096
)

var OAuthScopes = "channel_read chat:read user_blocks_edit user_blocks_read user_follows_edit user_read"
