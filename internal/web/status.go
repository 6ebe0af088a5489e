package web

import "sync"

// MinerStatus is the miner's own lifecycle phase, as distinct from any one
// streamer's live/offline flag.
type MinerStatus string

const (
	StatusInitializing MinerStatus = "initializing"
	StatusAuthRequired  MinerStatus = "auth_required"
	StatusAuthWaiting   MinerStatus = "auth_waiting"
	StatusRunning       MinerStatus = "running"
	StatusError         MinerStatus = "error"
)

// AuthInfo carries the device-code verification details while the miner
// waits on a user to authorize it (spec.md §6 token persistence).
type AuthInfo struct {
	VerificationURI string `json:"verificationUri,omitempty"`
	UserCode        string `json:"userCode,omitempty"`
	ExpiresIn       int    `json:"expiresIn,omitempty"`
}

// StatusInfo is the value broadcast to `/api/status` and `/api/status/stream`.
type StatusInfo struct {
	Status  MinerStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Auth    *AuthInfo   `json:"auth,omitempty"`
}

// StatusBroadcaster fans out lifecycle transitions to any number of SSE
// subscribers. Adapted from the teacher's internal/web.StatusBroadcaster,
// narrowed to the phases this miner actually has.
type StatusBroadcaster struct {
	status    StatusInfo
	listeners []chan StatusInfo
	mu        sync.RWMutex
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		status: StatusInfo{Status: StatusInitializing, Message: "starting up"},
	}
}

func (b *StatusBroadcaster) GetStatus() StatusInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *StatusBroadcaster) SetStatus(status MinerStatus, message string) {
	b.mu.Lock()
	b.status = StatusInfo{Status: status, Message: message}
	current := b.status
	b.mu.Unlock()
	b.broadcast(current)
}

func (b *StatusBroadcaster) SetAuthRequired(verificationURI, userCode string, expiresIn int) {
	b.mu.Lock()
	b.status = StatusInfo{
		Status:  StatusAuthRequired,
		Message: "authorize with twitch to continue",
		Auth:    &AuthInfo{VerificationURI: verificationURI, UserCode: userCode, ExpiresIn: expiresIn},
	}
	current := b.status
	b.mu.Unlock()
	b.broadcast(current)
}

func (b *StatusBroadcaster) Subscribe() chan StatusInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan StatusInfo, 10)
	b.listeners = append(b.listeners, ch)
	ch <- b.status
	return ch
}

func (b *StatusBroadcaster) Unsubscribe(ch chan StatusInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *StatusBroadcaster) broadcast(status StatusInfo) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners {
		select {
		case ch <- status:
		default:
		}
	}
}
