package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/cache"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

// FriendService manages friend requests and friendships.
//
// FRIEND REQUEST LIFECYCLE:
//
//	send ──► pending ──accept──► accepted (+ two friend rows)
//	            │
//	            ├──reject (receiver)──► deleted
//	            └──cancel (sender)────► deleted
//
// A send that finds the opposite request already pending does not create a
// second row. It accepts the existing one, so two people who ask each other
// become friends immediately.
type FriendService struct {
	friends repository.FriendRepository
	users   repository.UserRepository
	cache   *cache.ReadThrough
	logger  *slog.Logger
}

func NewFriendService(
	friends repository.FriendRepository,
	users repository.UserRepository,
	rt *cache.ReadThrough,
	logger *slog.Logger,
) *FriendService {
	return &FriendService{friends: friends, users: users, cache: rt, logger: logger}
}

func cachedFriends(ctx context.Context, rt *cache.ReadThrough, repo repository.FriendRepository, userID string) ([]model.UserRef, error) {
	return cache.GetOrLoad(ctx, rt, cache.FriendsKey(userID), func(ctx context.Context) ([]model.UserRef, error) {
		return repo.ListFriends(ctx, userID)
	})
}

func (s *FriendService) ListFriends(ctx context.Context, username string) ([]model.UserRef, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return nil, err
	}
	friends, err := cachedFriends(ctx, s.cache, s.friends, u.ID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing friends of %s: %w", username, err)
	}
	return friends, nil
}

// ListIncoming returns the pending requests username has received.
func (s *FriendService) ListIncoming(ctx context.Context, username string) ([]model.PendingRequest, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return nil, err
	}
	reqs, err := cache.GetOrLoad(ctx, s.cache, cache.FriendRequestsKey(u.ID), func(ctx context.Context) ([]model.PendingRequest, error) {
		return s.friends.ListIncomingRequests(ctx, u.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing requests for %s: %w", username, err)
	}
	return reqs, nil
}

// ListOutgoing returns the pending requests username has sent.
func (s *FriendService) ListOutgoing(ctx context.Context, username string) ([]model.PendingRequest, error) {
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return nil, err
	}
	reqs, err := cache.GetOrLoad(ctx, s.cache, cache.SentFriendRequestsKey(u.ID), func(ctx context.Context) ([]model.PendingRequest, error) {
		return s.friends.ListOutgoingRequests(ctx, u.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing sent requests for %s: %w", username, err)
	}
	return reqs, nil
}

// SendRequest asks receiver to become sender's friend.
//
// Outcomes:
//   - sender is someone other than the session user → ErrForbidden
//   - sender == receiver, already friends, or already pending → ErrValidation
//   - either user unknown → ErrNotFound
//   - receiver already asked sender → friendship, Relation{Status: friends}
//   - otherwise → new pending request, Relation{Status: request_sent}
func (s *FriendService) SendRequest(ctx context.Context, sessionUser, senderName, receiverName string) (*model.Relation, error) {
	if senderName != sessionUser {
		return nil, apperror.Forbidden("You can only send friend requests as yourself")
	}
	if senderName == receiverName {
		return nil, apperror.ValidationFailed("receiverUsername", "You cannot send a friend request to yourself")
	}

	sender, err := lookupUser(ctx, s.cache, s.users, senderName)
	if err != nil {
		return nil, err
	}
	receiver, err := lookupUser(ctx, s.cache, s.users, receiverName)
	if err != nil {
		return nil, err
	}

	already, err := s.friends.AreFriends(ctx, sender.ID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: checking friendship: %w", err)
	}
	if already {
		return nil, apperror.ValidationFailed("receiverUsername", "You are already friends with "+receiverName)
	}

	if _, err := s.pendingBetween(ctx, sender.ID, receiver.ID); err == nil {
		return nil, apperror.ValidationFailed("receiverUsername", "Friend request already sent")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	// --- Auto-accept: the other side asked first ---
	reverse, err := s.pendingBetween(ctx, receiver.ID, sender.ID)
	switch {
	case err == nil:
		if err := s.friends.AcceptRequest(ctx, reverse.ID); err != nil {
			return nil, fmt.Errorf("service/friend: auto-accepting %s: %w", reverse.ID, err)
		}
		s.evict(ctx, sender.ID, receiver.ID)
		s.logger.Info("friend request auto-accepted",
			slog.String("sender", senderName),
			slog.String("receiver", receiverName),
		)
		return &model.Relation{Status: model.StatusFriends}, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	req := &model.FriendRequest{SenderID: sender.ID, ReceiverID: receiver.ID}
	if err := s.friends.CreateRequest(ctx, req); err != nil {
		// Lost a race with an identical request.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("receiverUsername", "Friend request already sent")
		}
		return nil, fmt.Errorf("service/friend: creating request: %w", err)
	}

	s.evict(ctx, sender.ID, receiver.ID)
	s.logger.Info("friend request sent",
		slog.String("sender", senderName),
		slog.String("receiver", receiverName),
		slog.String("requestID", req.ID),
	)
	return &model.Relation{Status: model.StatusRequestSent, RequestID: req.ID}, nil
}

func (s *FriendService) pendingBetween(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error) {
	req, err := s.friends.PendingRequestBetween(ctx, senderID, receiverID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/friend: finding pending request: %w", err)
	}
	return req, err
}

// AcceptRequest turns a pending request into a friendship. Only its
// receiver may accept it.
func (s *FriendService) AcceptRequest(ctx context.Context, sessionUser, requestID string) error {
	req, err := s.pendingRequestFor(ctx, sessionUser, requestID, false)
	if err != nil {
		return err
	}
	if err := s.friends.AcceptRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("service/friend: accepting %s: %w", requestID, err)
	}
	s.evict(ctx, req.SenderID, req.ReceiverID)
	s.logger.Info("friend request accepted", slog.String("requestID", requestID))
	return nil
}

// RejectRequest deletes a pending request addressed to the session user.
func (s *FriendService) RejectRequest(ctx context.Context, sessionUser, requestID string) error {
	return s.dropRequest(ctx, sessionUser, requestID, false)
}

// CancelRequest deletes a pending request the session user sent.
func (s *FriendService) CancelRequest(ctx context.Context, sessionUser, requestID string) error {
	return s.dropRequest(ctx, sessionUser, requestID, true)
}

func (s *FriendService) dropRequest(ctx context.Context, sessionUser, requestID string, asSender bool) error {
	req, err := s.pendingRequestFor(ctx, sessionUser, requestID, asSender)
	if err != nil {
		return err
	}
	if err := s.friends.DeleteRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("service/friend: deleting %s: %w", requestID, err)
	}
	s.evict(ctx, req.SenderID, req.ReceiverID)
	return nil
}

// pendingRequestFor loads a pending request and checks the session user is
// on the required side of it.
func (s *FriendService) pendingRequestFor(ctx context.Context, sessionUser, requestID string, asSender bool) (*model.FriendRequest, error) {
	if requestID == "" {
		return nil, apperror.ValidationFailed("requestId", "Request id is required")
	}
	me, err := lookupUser(ctx, s.cache, s.users, sessionUser)
	if err != nil {
		return nil, err
	}

	req, err := s.friends.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: loading request %s: %w", requestID, err)
	}
	if req.Status != model.RequestPending {
		return nil, apperror.NotFound("friend request", requestID)
	}

	owner := req.ReceiverID
	if asSender {
		owner = req.SenderID
	}
	if owner != me.ID {
		return nil, apperror.Forbidden("This friend request is not yours to handle")
	}
	return req, nil
}

// DeleteFriend ends the friendship between username and friendID.
func (s *FriendService) DeleteFriend(ctx context.Context, sessionUser, username, friendID string) error {
	if username != sessionUser {
		return apperror.Forbidden("You can only remove your own friends")
	}
	if friendID == "" {
		return apperror.ValidationFailed("friendId", "Friend id is required")
	}
	me, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return err
	}
	if err := s.friends.DeleteFriendship(ctx, me.ID, friendID); err != nil {
		return fmt.Errorf("service/friend: unfriending %s/%s: %w", me.ID, friendID, err)
	}
	s.evict(ctx, me.ID, friendID)
	s.logger.Info("friend removed", slog.String("username", username), slog.String("friendID", friendID))
	return nil
}

// Status describes how user relates to other.
func (s *FriendService) Status(ctx context.Context, username, otherName string) (*model.Relation, error) {
	if username == otherName {
		return &model.Relation{Status: model.StatusSelf}, nil
	}
	u, err := lookupUser(ctx, s.cache, s.users, username)
	if err != nil {
		return nil, err
	}
	other, err := lookupUser(ctx, s.cache, s.users, otherName)
	if err != nil {
		return nil, err
	}

	friends, err := s.friends.AreFriends(ctx, u.ID, other.ID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: checking friendship: %w", err)
	}
	if friends {
		return &model.Relation{Status: model.StatusFriends}, nil
	}

	if req, err := s.pendingBetween(ctx, u.ID, other.ID); err == nil {
		return &model.Relation{Status: model.StatusRequestSent, RequestID: req.ID}, nil
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if req, err := s.pendingBetween(ctx, other.ID, u.ID); err == nil {
		return &model.Relation{Status: model.StatusRequestReceived, RequestID: req.ID}, nil
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return &model.Relation{Status: model.StatusNone}, nil
}

func (s *FriendService) evict(ctx context.Context, userIDs ...string) {
	keys := make([]string, 0, 3*len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, cache.FriendsKey(id), cache.FriendRequestsKey(id), cache.SentFriendRequestsKey(id))
	}
	s.cache.Invalidate(ctx, keys...)
}
