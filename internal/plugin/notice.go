package plugin

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoticeKind distinguishes the ways a message can be shown to the user.
type NoticeKind int

// Notice kinds.
const (
	KindNotice NoticeKind = iota
	KindToast
	KindAlert
)

// String returns the kind name.
func (k NoticeKind) String() string {
	switch k {
	case KindNotice:
		return "notice"
	case KindToast:
		return "toast"
	case KindAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// Notice is a user-visible message.
type Notice struct {
	ID      string
	Kind    NoticeKind
	Title   string
	Content string

	// Timeout is how long the notice stays up. Zero keeps it until dismissed.
	Timeout time.Duration

	// Buttons are the button labels offered with the notice.
	Buttons []string

	Created time.Time
}

// Notifier shows notices to the user.
type Notifier interface {
	// Notify shows n and returns its id.
	Notify(n Notice) string
}

// LogNotifier logs notices and keeps the undismissed ones in memory.
type LogNotifier struct {
	mu      sync.Mutex
	log     *zap.SugaredLogger
	notices []Notice
}

// NewLogNotifier creates a notifier that logs to log.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(notice Notice) string {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.Created.IsZero() {
		notice.Created = time.Now()
	}

	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()

	n.log.Infow(notice.Content, "kind", notice.Kind.String(), "title", notice.Title, "id", notice.ID)
	return notice.ID
}

// Notices returns the undismissed notices, oldest first.
func (n *LogNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.notices)
}

// Dismiss removes a notice. It reports whether the id was known.
func (n *LogNotifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	i := slices.IndexFunc(n.notices, func(x Notice) bool { return x.ID == id })
	if i < 0 {
		return false
	}
	n.notices = slices.Delete(n.notices, i, i+1)
	return true
}
