package widget

import (
	"time"

	"github.com/pesocareers/support-chat/internal/event"
)

// handleTyping reacts to an incoming typing broadcast. Only admin signals
// matter here; the widget's own broadcasts echo back on the same subject
// and are dropped. Each signal restarts the expiry timer, so the indicator
// stays up for the full window after the most recent signal rather than
// expiring on the first one's schedule.
func (w *Widget) handleTyping(ev event.Typing) {
	if ev.Sender != event.SenderAdmin {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.SessionID != w.sessionID || w.mode != ModeLive {
		return
	}

	w.adminTyping = true
	if w.typingTimer != nil {
		w.typingTimer.Stop()
	}

	// An expiring timer can lose the Stop race and fire after the renewal
	// above. The generation check makes such a stale closure a no-op, so
	// the window always extends from the most recent signal.
	w.typingGen++
	gen := w.typingGen
	w.typingTimer = time.AfterFunc(w.typingExpiry, func() {
		w.mu.Lock()
		if w.typingGen == gen {
			w.adminTyping = false
		}
		w.mu.Unlock()
	})
}
