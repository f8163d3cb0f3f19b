package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/wave/internal/assistant"
	"github.com/npezzotti/wave/internal/broker"
	"github.com/npezzotti/wave/internal/database"
	"github.com/npezzotti/wave/internal/server"
	"github.com/npezzotti/wave/internal/types"
)

type CreateRoomRequest struct {
	Name        string `json:"name"`
	CreatorName string `json:"creatorName"`
}

type JoinRoomRequest struct {
	Name string `json:"name"`
}

type ChatRequest struct {
	ParticipantId string            `json:"participantId"`
	Content       types.ContentList `json:"content"`
}

type CompletionRequest struct {
	Messages []assistant.Turn `json:"messages"`
}

// RoomSummary is the room as returned by create and join.
type RoomSummary struct {
	Id           string              `json:"id"`
	Name         string              `json:"name"`
	Participants []types.Participant `json:"participants"`
	CreatedAt    time.Time           `json:"createdAt"`
}

type RoomResponse struct {
	Room        RoomSummary       `json:"room"`
	Participant types.Participant `json:"participant"`
}

type RoomDetails struct {
	Id           string              `json:"id"`
	Name         string              `json:"name"`
	Participants []types.Participant `json:"participants"`
	MessageCount int                 `json:"messageCount"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func summarize(room types.Room) RoomSummary {
	return RoomSummary{
		Id:           room.Id,
		Name:         room.Name,
		Participants: room.Participants,
		CreatedAt:    room.CreatedAt,
	}
}

func (app *WaveApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.log.Error().Err(err).Msg("json encode")
	}
}

func (app *WaveApp) writeError(w http.ResponseWriter, err error) {
	var errResp *ApiError
	switch {
	case errors.As(err, &errResp):
	case broker.IsNotFound(err):
		errResp = NewNotFoundError()
	case errors.Is(err, database.ErrEmptyContent):
		errResp = NewBadRequestMessage(database.ErrEmptyContent.Error())
	default:
		app.log.Error().Err(err).Msg("request failed")
		errResp = NewInternalServerError(err)
	}

	app.writeJson(w, errResp.StatusCode, errResp)
}

func (app *WaveApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := app.broker.Ping(r.Context()); err != nil {
		app.log.Error().Err(err).Msg("health check")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (app *WaveApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, NewBadRequestError())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.CreatorName = strings.TrimSpace(req.CreatorName)
	if req.Name == "" || req.CreatorName == "" {
		app.writeError(w, NewBadRequestMessage("room name and creator name are required"))
		return
	}

	externalId, _ := ExternalId(r.Context())
	room, creator, err := app.broker.CreateRoom(r.Context(), req.Name, req.CreatorName, externalId)
	if err != nil {
		app.writeError(w, err)
		return
	}

	app.writeJson(w, http.StatusCreated, RoomResponse{Room: summarize(room), Participant: creator})
}

func (app *WaveApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := app.broker.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		app.writeError(w, err)
		return
	}

	app.writeJson(w, http.StatusOK, RoomDetails{
		Id:           room.Id,
		Name:         room.Name,
		Participants: room.Participants,
		MessageCount: len(room.Messages),
		CreatedAt:    room.CreatedAt,
	})
}

func (app *WaveApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, NewBadRequestError())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		app.writeError(w, NewBadRequestMessage("name is required"))
		return
	}

	externalId, _ := ExternalId(r.Context())
	room, participant, err := app.broker.JoinRoom(r.Context(), r.PathValue("id"), req.Name, externalId)
	if err != nil {
		app.writeError(w, err)
		return
	}

	app.writeJson(w, http.StatusOK, RoomResponse{Room: summarize(room), Participant: participant})
}

func (app *WaveApp) getMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := app.broker.GetMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		app.writeError(w, err)
		return
	}

	app.writeJson(w, http.StatusOK, messages)
}

// chat stores the participant's message, then runs the assistant to
// completion before answering with the stored message.
func (app *WaveApp) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.writeError(w, NewBadRequestError())
		return
	}

	if req.ParticipantId == "" || len(req.Content) == 0 {
		app.writeError(w, NewBadRequestMessage("participant id and content are required"))
		return
	}

	roomId := r.PathValue("id")
	if _, err := app.broker.GetRoom(r.Context(), roomId); err != nil {
		app.writeError(w, err)
		return
	}

	msg, err := app.broker.AddMessage(r.Context(), roomId, req.ParticipantId, req.Content)
	if err != nil {
		app.writeError(w, err)
		return
	}

	if _, err := app.responder.Respond(r.Context(), roomId); err != nil {
		app.writeError(w, err)
		return
	}

	app.writeJson(w, http.StatusOK, msg)
}

func (app *WaveApp) streamEvents(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")
	if _, err := app.broker.GetRoom(r.Context(), roomId); err != nil {
		app.writeError(w, err)
		return
	}

	sink, err := server.NewSSESink(w)
	if err != nil {
		// headers are already on the wire once the stream has started
		if errors.Is(err, server.ErrStreamStarted) {
			app.log.Warn().Err(err).Str("room_id", roomId).Msg("open event stream")
			return
		}
		app.writeError(w, err)
		return
	}

	client := app.hub.NewClient(roomId)
	if err := app.hub.Register(client); err != nil {
		app.log.Debug().Err(err).Str("client_id", client.Id()).Msg("register stream")
		return
	}

	client.Write(r.Context(), sink)
}

func (app *WaveApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")
	if _, err := app.broker.GetRoom(r.Context(), roomId); err != nil {
		app.writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(app.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.log.Debug().Err(err).Msg("upgrade connection")
		return
	}

	sink := server.NewWebsocketSink(conn)
	defer sink.Close()

	client := app.hub.NewClient(roomId)
	if err := app.hub.Register(client); err != nil {
		app.log.Debug().Err(err).Str("client_id", client.Id()).Msg("register websocket")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Read(cancel, app.log)

	client.Write(ctx, sink)
}

// completion streams a plain-text reply to a stateless conversation.
func (app *WaveApp) completion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		app.writeError(w, NewBadRequestError())
		return
	}

	for _, t := range req.Messages {
		if t.Role != assistant.RoleUser && t.Role != assistant.RoleAssistant {
			app.writeError(w, NewBadRequestMessage("unsupported role "+t.Role))
			return
		}
	}

	rc := http.NewResponseController(w)
	started := false
	_, err := app.model.Stream(r.Context(), assistant.Request{
		System: assistant.WorkspacePrompt,
		Turns:  req.Messages,
	}, func(chunk string) {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		w.Write([]byte(chunk))
		rc.Flush()
	})

	if err != nil && !started {
		if errors.Is(err, assistant.ErrModelNotConfigured) {
			app.writeError(w, NewServiceUnavailableError(err))
			return
		}
		app.writeError(w, err)
		return
	}
	if err != nil {
		app.log.Error().Err(err).Msg("completion stream interrupted")
	}
}
