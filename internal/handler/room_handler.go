package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"marketchat/internal/app/delivery"
	"marketchat/internal/app/envelope"
	"marketchat/internal/configs"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/req"
	"marketchat/internal/pkg/resp"
)

const (
	// MaxHistoryPageSize caps the size query parameter of the history endpoint.
	MaxHistoryPageSize = configs.MaxHistoryPageSize

	maxRoomNameLen = 100
	maxRoomMembers = 50
)

// participantFor resolves the principal and the {roomID} path parameter and checks that the
// principal actively participates in the room. It writes the error response itself.
func participantFor(deps *AppDeps, w http.ResponseWriter, r *http.Request) (auth.Principal, int64, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
		return auth.Principal{}, 0, false
	}

	roomID, customErr := req.PathInt64(chi.URLParam(r, "roomID"), "room id")
	if customErr != nil {
		resp.RespondError(w, r, customErr)
		return auth.Principal{}, 0, false
	}

	member, err := deps.Rooms.IsActiveParticipant(r.Context(), roomID, p.UserID)
	if err != nil {
		resp.RespondErr(w, r, errs.Wrap(errs.ErrPersistenceFailed, err))
		return auth.Principal{}, 0, false
	}
	if !member {
		resp.RespondError(w, r, errs.NewError(errs.ErrNotRoomParticipant))
		return auth.Principal{}, 0, false
	}

	return p, roomID, true
}

type CreateRoomInput struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"memberIds"`
}

// HandleCreateRoom creates a room with the caller and the listed members.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateRoomInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.Name = strings.TrimSpace(input.Name)
		if input.Name == "" || utf8.RuneCountInString(input.Name) > maxRoomNameLen || len(input.MemberIDs) > maxRoomMembers {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		for _, id := range input.MemberIDs {
			if id <= 0 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
		}

		room, err := deps.Rooms.CreateRoom(r.Context(), input.Name, p.UserID, input.MemberIDs)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, room)
	}
}

// HandleListRooms lists the rooms the caller actively participates in.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		rooms, err := deps.Rooms.ListRooms(r.Context(), p.UserID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"rooms": rooms})
	}
}

// HandleHistory returns a page of the room's messages, newest first, and marks the
// messages of other participants as read.
func HandleHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		page, customErr := req.QueryInt(r, "page", 0)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		size, customErr := req.QueryInt(r, "size", deps.Config.HistoryPageSize)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if size == 0 {
			size = deps.Config.HistoryPageSize
		}
		if size > MaxHistoryPageSize {
			size = MaxHistoryPageSize
		}

		history, err := deps.Rooms.History(r.Context(), roomID, page, size)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		if _, err := deps.Rooms.MarkRead(r.Context(), roomID, p.UserID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, history)
	}
}

// HandleMarkRead marks the messages of other participants in the room as read.
func HandleMarkRead(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		n, err := deps.Rooms.MarkRead(r.Context(), roomID, p.UserID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"updated": n})
	}
}

type SendMessageInput struct {
	Content     string               `json:"content"`
	MessageType envelope.MessageType `json:"messageType,omitempty"`
}

// HandleSendMessage sends a chat message through the same pipeline as the connection endpoint.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomID, customErr := req.PathInt64(chi.URLParam(r, "roomID"), "room id")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Chat.Send(r.Context(), p, delivery.SendRequest{
			RoomID:      roomID,
			Content:     input.Content,
			MessageType: input.MessageType,
		})
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, msg)
	}
}
