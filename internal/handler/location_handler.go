package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketchat/internal/app/delivery"
	"marketchat/internal/pkg/req"
	"marketchat/internal/pkg/resp"
)

// HandleRecentLocations returns the latest location of every user in the room.
func HandleRecentLocations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		locations, err := deps.Rooms.RecentLocations(r.Context(), roomID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"locations": locations})
	}
}

// HandleLastLocation returns the latest location of one user in the room.
func HandleLastLocation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		userID, customErr := req.PathInt64(chi.URLParam(r, "userID"), "user id")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		location, err := deps.Rooms.LastLocation(r.Context(), roomID, userID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, location)
	}
}

type PostLocationInput struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Address   string  `json:"address,omitempty"`
}

// HandlePostLocation records a location ping through the location pipeline.
func HandlePostLocation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		var input PostLocationInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		ping, err := deps.Locations.Post(r.Context(), p, delivery.LocationRequest{
			RoomID:    roomID,
			Latitude:  input.Latitude,
			Longitude: input.Longitude,
			Address:   input.Address,
		})
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, ping)
	}
}
