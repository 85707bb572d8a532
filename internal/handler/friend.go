package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/service"
)

// FriendHandler serves the friend graph: lists, requests and status.
//
// Every mutation is checked against the session user by the service, so
// the usernames in request bodies only have to agree with the cookie.
type FriendHandler struct {
	friends *service.FriendService
	logger  *slog.Logger
}

func NewFriendHandler(friends *service.FriendService, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, logger: logger}
}

// HandleListFriends: GET /api/friends?username=
func (h *FriendHandler) HandleListFriends(w http.ResponseWriter, r *http.Request) {
	listByUsername(w, r, h.logger, "list friends", h.friends.ListFriends)
}

// HandleListRequests returns requests the user received.
// HTTP: GET /api/friendRequests?username=
func (h *FriendHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	listByUsername(w, r, h.logger, "list friend requests", h.friends.ListIncoming)
}

// HandleListSent returns requests the user sent.
// HTTP: GET /api/sentFriendRequests?username=
func (h *FriendHandler) HandleListSent(w http.ResponseWriter, r *http.Request) {
	listByUsername(w, r, h.logger, "list sent friend requests", h.friends.ListOutgoing)
}

func listByUsername[T any](
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	op string,
	fetch func(ctx context.Context, username string) ([]T, error),
) {
	username, err := requiredQuery(r, "username")
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := fetch(r.Context(), username)
	if err != nil {
		failed(w, logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type sendRequestRequest struct {
	SenderUsername   string `json:"senderUsername"`
	ReceiverUsername string `json:"receiverUsername"`
}

type sendRequestResponse struct {
	Message   string             `json:"message"`
	Status    model.FriendStatus `json:"status"`
	RequestID string             `json:"requestId,omitempty"`
}

// HandleSend sends a friend request, or completes the friendship when the
// receiver had already asked.
//
// HTTP: POST /api/sendFriendRequest {"senderUsername", "receiverUsername"}
func (h *FriendHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rel, err := h.friends.SendRequest(r.Context(), sessionUser, req.SenderUsername, req.ReceiverUsername)
	if err != nil {
		failed(w, h.logger, "send friend request", err)
		return
	}

	msg := "Friend request sent successfully."
	if rel.Status == model.StatusFriends {
		msg = "You are now friends."
	}
	writeJSON(w, http.StatusOK, sendRequestResponse{Message: msg, Status: rel.Status, RequestID: rel.RequestID})
}

type requestIDRequest struct {
	RequestID string `json:"requestId"`
}

// HandleAccept: POST /api/acceptFriendRequest {"requestId"}
func (h *FriendHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	h.handleRequest(w, r, "accept friend request", h.friends.AcceptRequest,
		"Friend request accepted successfully.")
}

// HandleReject: POST /api/rejectFriendRequest {"requestId"}
func (h *FriendHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleRequest(w, r, "reject friend request", h.friends.RejectRequest,
		"Friend request rejected successfully.")
}

// HandleCancel: POST /api/cancelFriendRequest {"requestId"}
func (h *FriendHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleRequest(w, r, "cancel friend request", h.friends.CancelRequest,
		"Friend request cancelled successfully.")
}

func (h *FriendHandler) handleRequest(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	act func(ctx context.Context, sessionUser, requestID string) error,
	success string,
) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req requestIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := act(r.Context(), sessionUser, req.RequestID); err != nil {
		failed(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: success})
}

type deleteFriendRequest struct {
	Username string `json:"username"`
	FriendID string `json:"friendId"`
}

// HandleDelete ends a friendship and clears every request between the two.
// HTTP: POST /api/deleteFriend {"username", "friendId"}
func (h *FriendHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionUser, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req deleteFriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.friends.DeleteFriend(r.Context(), sessionUser, req.Username, req.FriendID); err != nil {
		failed(w, h.logger, "delete friend", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Friend removed successfully and friend requests cleared."})
}

// HandleStatus: GET /api/friendStatus?user=&other=
func (h *FriendHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	user, err := requiredQuery(r, "user")
	if err != nil {
		writeError(w, err)
		return
	}
	other, err := requiredQuery(r, "other")
	if err != nil {
		writeError(w, err)
		return
	}

	rel, err := h.friends.Status(r.Context(), user, other)
	if err != nil {
		failed(w, h.logger, "friend status", err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}
