package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
	"github.com/mikahagenbeek692/MovieManager/internal/repository"
)

var _ repository.FriendRepository = (*DB)(nil)

// ListFriends returns the user's friends ordered by username.
//
// A friendship is stored as two rows, (A,B) and (B,A). The query still looks
// in both columns so a pair stored in only one direction is found too.
func (db *DB) ListFriends(ctx context.Context, userID string) ([]model.UserRef, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(
		`SELECT DISTINCT u.id, u.username
		 FROM friends f
		 JOIN users u ON u.id = CASE WHEN f.user_id = ? THEN f.friend_id ELSE f.user_id END
		 WHERE f.user_id = ? OR f.friend_id = ?
		 ORDER BY u.username`), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing friends of %s: %w", userID, err)
	}
	defer rows.Close()

	friends := []model.UserRef{}
	for rows.Next() {
		var f model.UserRef
		if err := rows.Scan(&f.ID, &f.Username); err != nil {
			return nil, fmt.Errorf("sqldb: scanning friend row: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating friend rows: %w", err)
	}
	return friends, nil
}

// AreFriends reports whether a friendship exists in either direction.
func (db *DB) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT COUNT(*) FROM friends
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`),
		a, b, b, a,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqldb: checking friendship %s/%s: %w", a, b, err)
	}
	return n > 0, nil
}

// ListIncomingRequests returns pending requests sent to userID, with the
// sender's username.
func (db *DB) ListIncomingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return db.listRequests(ctx,
		`SELECT fr.id, u.id, u.username
		 FROM friend_requests fr
		 JOIN users u ON u.id = fr.sender_id
		 WHERE fr.receiver_id = ? AND fr.status = ?
		 ORDER BY fr.created_at, fr.id`, userID)
}

// ListOutgoingRequests returns pending requests sent by userID, with the
// receiver's username.
func (db *DB) ListOutgoingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error) {
	return db.listRequests(ctx,
		`SELECT fr.id, u.id, u.username
		 FROM friend_requests fr
		 JOIN users u ON u.id = fr.receiver_id
		 WHERE fr.sender_id = ? AND fr.status = ?
		 ORDER BY fr.created_at, fr.id`, userID)
}

func (db *DB) listRequests(ctx context.Context, query, userID string) ([]model.PendingRequest, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), userID, string(model.RequestPending))
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing friend requests for %s: %w", userID, err)
	}
	defer rows.Close()

	reqs := []model.PendingRequest{}
	for rows.Next() {
		var r model.PendingRequest
		if err := rows.Scan(&r.ID, &r.UserID, &r.Username); err != nil {
			return nil, fmt.Errorf("sqldb: scanning friend request row: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating friend request rows: %w", err)
	}
	return reqs, nil
}

func scanRequest(s rowScanner) (*model.FriendRequest, error) {
	var r model.FriendRequest
	var status string
	if err := s.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &status, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RequestStatus(status)
	return &r, nil
}

// GetRequest returns a request by id regardless of status.
func (db *DB) GetRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	r, err := scanRequest(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT id, sender_id, receiver_id, status, created_at FROM friend_requests WHERE id = ?`), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("friend request", id)
		}
		return nil, fmt.Errorf("sqldb: getting friend request %s: %w", id, err)
	}
	return r, nil
}

// PendingRequestBetween looks up the pending request sender→receiver.
func (db *DB) PendingRequestBetween(ctx context.Context, senderID, receiverID string) (*model.FriendRequest, error) {
	r, err := scanRequest(db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT id, sender_id, receiver_id, status, created_at FROM friend_requests
		 WHERE sender_id = ? AND receiver_id = ? AND status = ?`),
		senderID, receiverID, string(model.RequestPending)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("friend request", senderID+"->"+receiverID)
		}
		return nil, fmt.Errorf("sqldb: finding request %s->%s: %w", senderID, receiverID, err)
	}
	return r, nil
}

// CreateRequest inserts a pending request. The partial unique index turns a
// duplicate pending request into apperror.ErrConflict.
func (db *DB) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	req.ID = xid.New().String()
	req.Status = model.RequestPending
	req.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at) VALUES (?, ?, ?, ?, ?)`),
		req.ID, req.SenderID, req.ReceiverID, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("friend request", "a request is already pending")
		}
		return fmt.Errorf("sqldb: inserting friend request: %w", err)
	}
	return nil
}

// AcceptRequest turns a pending request into a friendship.
//
// One transaction covers the status change and both friend rows, so a crash
// can never leave a half-made friendship. Requests that are missing or no
// longer pending yield NotFound.
func (db *DB) AcceptRequest(ctx context.Context, id string) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: beginning accept: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var senderID, receiverID string
	err = tx.QueryRowContext(ctx, db.rebind(
		`SELECT sender_id, receiver_id FROM friend_requests WHERE id = ? AND status = ?`+db.forUpdate()),
		id, string(model.RequestPending),
	).Scan(&senderID, &receiverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("friend request", id)
		}
		return fmt.Errorf("sqldb: loading friend request %s: %w", id, err)
	}

	if _, err = tx.ExecContext(ctx, db.rebind(
		`UPDATE friend_requests SET status = ? WHERE id = ?`), string(model.RequestAccepted), id); err != nil {
		return fmt.Errorf("sqldb: marking request %s accepted: %w", id, err)
	}

	now := time.Now().UTC()
	for _, pair := range [][2]string{{senderID, receiverID}, {receiverID, senderID}} {
		if _, err = tx.ExecContext(ctx, db.rebind(
			`INSERT INTO friends (user_id, friend_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
			pair[0], pair[1], now); err != nil {
			return fmt.Errorf("sqldb: inserting friendship %s/%s: %w", pair[0], pair[1], err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: committing accept of %s: %w", id, err)
	}
	return nil
}

// DeleteRequest removes a pending request (reject or cancel).
func (db *DB) DeleteRequest(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(
		`DELETE FROM friend_requests WHERE id = ? AND status = ?`), id, string(model.RequestPending))
	if err != nil {
		return fmt.Errorf("sqldb: deleting friend request %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("friend request", id)
	}
	return nil
}

// DeleteFriendship removes both directions of the friendship and every
// request between the two users, so either side can send a fresh request later.
func (db *DB) DeleteFriendship(ctx context.Context, a, b string) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: beginning unfriend: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, db.rebind(
		`DELETE FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`),
		a, b, b, a)
	if err != nil {
		return fmt.Errorf("sqldb: deleting friendship %s/%s: %w", a, b, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("friendship", a+"/"+b)
	}

	if _, err = tx.ExecContext(ctx, db.rebind(
		`DELETE FROM friend_requests WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)`),
		a, b, b, a); err != nil {
		return fmt.Errorf("sqldb: deleting requests between %s/%s: %w", a, b, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: committing unfriend: %w", err)
	}
	return nil
}
