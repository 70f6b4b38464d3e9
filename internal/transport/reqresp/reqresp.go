// Package reqresp implements the REQ-RESP transport (§4.G): a one-shot
// HTTP handler at POST /cmd whose body is a single text-encoded command
// and whose response body is that command's text-encoded return value.
// There is no multiplexing id on the wire (one body carries exactly one
// command) and no subscription support at all — Subscribe/Unsubscribe
// are rejected outright, per §4.G "Subscriptions are not supported on
// this transport".
package reqresp

import (
	"context"
	"errors"
	"io"
	"net/http"

	wiretext "github.com/kareszklub/roblibd/internal/codec/text"
	"github.com/kareszklub/roblibd/internal/dispatch"
	roberrors "github.com/kareszklub/roblibd/internal/errors"
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
	"github.com/kareszklub/roblibd/internal/transport/common"
)

// maxBodyBytes bounds how much of the request body is read, guarding
// against a client streaming an unbounded body at a handler that expects
// exactly one command.
const maxBodyBytes = 4096

// Handler serves POST /cmd.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
}

// New constructs a REQ-RESP handler.
func New(dispatcher *dispatch.Dispatcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(logging.String("remote_addr", r.RemoteAddr))

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		log.Warn("failed to read request body", logging.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(body) > maxBodyBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	cmd, err := wiretext.DecodeRequestUnframed(string(body))
	if err != nil {
		log.Debug("malformed command", logging.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	value, err := h.dispatch(r.Context(), cmd)
	if err != nil {
		log.Warn("command dispatch failed", logging.Error(err))
		writeDispatchError(w, err)
		return
	}

	resp, err := wiretext.EncodeResponseUnframed(cmd.Prefix(), value)
	if err != nil {
		log.Warn("response encode failed", logging.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, resp)
}

// dispatch special-cases Subscribe/Unsubscribe (no-op elsewhere: REQ-RESP
// has no bus connection to route them to) so every other command still
// goes through the normal dispatcher path.
func (h *Handler) dispatch(ctx context.Context, cmd protocol.Command) (any, error) {
	switch cmd.(type) {
	case *protocol.Subscribe, *protocol.Unsubscribe:
		return nil, common.RejectSubscription()
	default:
		return h.dispatcher.Dispatch(ctx, cmd)
	}
}

func writeDispatchError(w http.ResponseWriter, err error) {
	var subErr *roberrors.SubscriptionError
	var backendErr *roberrors.BackendError
	switch {
	case errors.As(err, &subErr):
		w.WriteHeader(http.StatusNotImplemented)
	case errors.As(err, &backendErr) && backendErr.Kind == roberrors.BackendKindInvalidArgument:
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}
