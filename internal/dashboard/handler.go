package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/confhub/confsync/internal/sync"
)

// Handler bridges engine events onto the websocket feed. Hand it to the
// puller and pusher as their event sink.
type Handler struct {
	server *Server
	logger *log.Logger
}

var _ sync.EventSink = (*Handler)(nil)

// NewHandler creates a handler that broadcasts through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{server: server, logger: logger}
}

// DocumentSynced broadcasts one document outcome.
func (h *Handler) DocumentSynced(res sync.Result) {
	data := DocSyncedData{
		Root:     res.Root,
		RemoteID: res.RemoteID,
		Title:    res.Title,
		Path:     res.Path,
		Version:  res.Version,
		Outcome:  string(res.Outcome),
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	h.send(MessageTypeDocSynced, data)
}

// PassCompleted broadcasts the pass summary.
func (h *Handler) PassCompleted(rep *sync.Report) {
	h.send(MessageTypePassComplete, PassCompleteData{
		Created:   rep.Count(sync.OutcomeCreated),
		Updated:   rep.Count(sync.OutcomeUpdated),
		Unchanged: rep.Count(sync.OutcomeSkipped),
		Failed:    rep.Count(sync.OutcomeFailed),
		Duration:  rep.Duration.Round(time.Millisecond).String(),
		OK:        rep.OK(),
	})
}

// PushCompleted broadcasts a finished push.
func (h *Handler) PushCompleted(res *sync.PushResult) {
	data := PushCompleteData{
		Root:       res.Root,
		RemoteID:   res.RemoteID,
		OldVersion: res.OldVersion,
		NewVersion: res.NewVersion,
	}
	if res.RefreshErr != nil {
		data.RefreshWarning = res.RefreshErr.Error()
	}
	h.send(MessageTypePushComplete, data)
}

func (h *Handler) send(mt MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("marshal %s: %v", mt, err)
		return
	}
	h.server.Broadcast(Message{Type: mt, Timestamp: time.Now(), Data: data})
}
