package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nguyentrongduc2005/chat-high-load/internal/gateway"
	"github.com/teris-io/shortid"
)

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type MembershipRequest struct {
	UserId string `json:"user_id"`
}

type SendMessageRequest struct {
	UserId    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type RoomUsersResponse struct {
	RoomId  string   `json:"room_id"`
	UserIds []string `json:"user_ids"`
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.svc.Ping(r.Context()))
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.svc.CreateRoom(r.Context(), req.Name, req.Description)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.ListRooms(r.Context())
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.svc.JoinRoom(r.Context(), req.UserId, r.PathValue("id")); err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.svc.LeaveRoom(r.Context(), req.UserId, r.PathValue("id")); err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), req.UserId, r.PathValue("id"), req.Content, req.Timestamp)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")

	// the recent view serves from the hot cache and ignores paging
	if r.URL.Query().Get("recent") == "true" {
		messages, err := s.svc.RecentMessages(r.Context(), roomId)
		if err != nil {
			errResp := fromServiceError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, messages)
		return
	}

	var limit, offset int
	var err error

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.svc.GetMessages(r.Context(), roomId, limit, offset)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *Server) listUsersInRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")

	userIds, err := s.svc.ListUsersInRoom(r.Context(), roomId)
	if err != nil {
		errResp := fromServiceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, RoomUsersResponse{RoomId: roomId, UserIds: userIds})
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	connId, err := shortid.Generate()
	if err != nil {
		s.log.Println("generate connection id:", err)
		conn.Close()
		return
	}

	client := gateway.NewClient(connId, conn, s.gw, s.log)
	s.gw.RegisterClient(client)
	go client.Write()
	go client.Read()
}
