package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/model"
)

// Music is the part of the coordinator the shield service drives automatically.
type Music interface {
	// AutoPlayIfFree starts track unless the user owns a playing session.
	AutoPlayIfFree(track model.TrackRef) bool
	// AutoStop stops playback unless the user started it.
	AutoStop() bool
	// State returns a snapshot of the ownership state.
	State() model.MusicOwnership
}

// MusicCoordinator tracks who owns the current audio session.
// Automatic playback never overrides a user-initiated session and never stops one.
type MusicCoordinator struct {
	mu     sync.Mutex
	st     model.MusicOwnership
	events *Broadcaster
	log    *zap.Logger
	now    func() time.Time
}

var _ Music = (*MusicCoordinator)(nil)

// NewMusicCoordinator constructs a coordinator with nothing playing. events may be nil.
func NewMusicCoordinator(events *Broadcaster, log *zap.Logger) *MusicCoordinator {
	return &MusicCoordinator{events: events, log: log, now: time.Now}
}

// UserPlay starts track on behalf of the user, replacing any automatic session.
func (m *MusicCoordinator) UserPlay(track model.TrackRef) {
	m.update(func(st *model.MusicOwnership) bool {
		st.CurrentTrack = &track
		st.IsPlaying = true
		st.IsUserInitiated = true
		return true
	})
	m.log.Info("user play", zap.Int("track", track.ID))
}

// UserTogglePlayPause flips playback; resuming marks the session as the user's.
func (m *MusicCoordinator) UserTogglePlayPause() {
	m.update(func(st *model.MusicOwnership) bool {
		st.IsPlaying = !st.IsPlaying
		if st.IsPlaying {
			st.IsUserInitiated = true
		}
		return true
	})
}

// AutoPlayIfFree starts track automatically. It reports false when a
// user-initiated session is playing and was left untouched.
func (m *MusicCoordinator) AutoPlayIfFree(track model.TrackRef) bool {
	ok := m.update(func(st *model.MusicOwnership) bool {
		if st.IsUserInitiated && st.IsPlaying {
			return false
		}
		st.CurrentTrack = &track
		st.IsPlaying = true
		st.IsUserInitiated = false
		return true
	})
	if !ok {
		m.log.Info("auto play skipped: user session playing")
	}
	return ok
}

// AutoStop stops automatic playback. It reports false when the session is the user's.
func (m *MusicCoordinator) AutoStop() bool {
	return m.update(func(st *model.MusicOwnership) bool {
		if st.IsUserInitiated {
			return false
		}
		if !st.IsPlaying {
			return true
		}
		st.IsPlaying = false
		return true
	})
}

// UserStop stops playback and releases ownership.
func (m *MusicCoordinator) UserStop() {
	m.update(func(st *model.MusicOwnership) bool {
		st.IsPlaying = false
		st.IsUserInitiated = false
		return true
	})
}

// State returns a snapshot.
func (m *MusicCoordinator) State() model.MusicOwnership {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone()
}

// update applies fn under the lock and publishes when the state changed.
func (m *MusicCoordinator) update(fn func(st *model.MusicOwnership) bool) bool {
	m.mu.Lock()
	before := m.st.Clone()
	ok := fn(&m.st)
	after := m.st.Clone()
	m.mu.Unlock()

	if m.events != nil && !sameMusic(before, after) {
		m.events.Publish(model.Event{Kind: model.EventMusicChanged, Music: after, At: m.now()})
	}
	return ok
}

func sameMusic(a, b model.MusicOwnership) bool {
	if a.IsPlaying != b.IsPlaying || a.IsUserInitiated != b.IsUserInitiated {
		return false
	}
	if (a.CurrentTrack == nil) != (b.CurrentTrack == nil) {
		return false
	}
	return a.CurrentTrack == nil || *a.CurrentTrack == *b.CurrentTrack
}
