package roomgate

import (
	"context"

	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/roomapi"
)

// RoomAPI is the part of roomapi.Client the gate needs.
type RoomAPI interface {
	GetRoomState(ctx context.Context, roomID string) (*roomapi.StateResponse, error)
	GetColorClashRoom(ctx context.Context, roomID string) (*roomapi.RoomResponse, error)
	GetWhiteboardRoom(ctx context.Context, roomID string) (*roomapi.Room, error)
}

// APICheckers maps every room type onto its existence endpoint.
func APICheckers(api RoomAPI) map[protocol.Mode]Checker {
	return map[protocol.Mode]Checker{
		protocol.ModeGuessDraw: CheckerFunc(func(ctx context.Context, id string) (Result, error) {
			res, err := api.GetRoomState(ctx, id)
			if err != nil || res == nil {
				return Result{}, err
			}
			return Result{Valid: res.Success, Message: res.Message}, nil
		}),
		protocol.ModeColorClash: CheckerFunc(func(ctx context.Context, id string) (Result, error) {
			res, err := api.GetColorClashRoom(ctx, id)
			if err != nil || res == nil {
				return Result{}, err
			}
			return Result{Valid: res.Success, Message: res.Message}, nil
		}),
		protocol.ModeWhiteboard: CheckerFunc(func(ctx context.Context, id string) (Result, error) {
			room, err := api.GetWhiteboardRoom(ctx, id)
			if err != nil {
				return Result{}, err
			}
			if room == nil {
				return Result{Message: "room not found"}, nil
			}
			return Result{Valid: true}, nil
		}),
	}
}
