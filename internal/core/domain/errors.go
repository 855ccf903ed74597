package domain

import "errors"

var (
	ErrPeerNotFound     = errors.New("peer not found")
	ErrPeerOffline      = errors.New("peer is offline")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyInRoom    = errors.New("peer is already in a room")
	ErrInvalidJoinLink  = errors.New("invalid or expired join link")
	ErrCallPending      = errors.New("a call is already pending")
	ErrNegotiationState = errors.New("invalid negotiation state")
	ErrMediaAcquisition = errors.New("failed to acquire local media")
	ErrSessionEnded     = errors.New("call session has ended")
)
