package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Connect procedure paths.
const (
	CreateSessionProcedure  = "/squirrel.v1.SessionService/Create"
	DestroySessionProcedure = "/squirrel.v1.SessionService/Destroy"
)

// SessionService creates and destroys workspace sessions.
type SessionService struct {
	sessions *SessionStore
}

// NewSessionService creates a SessionService.
func NewSessionService(sessions *SessionStore) *SessionService {
	return &SessionService{sessions: sessions}
}

// Create starts a session named by the request and returns its "id" and
// "name".
func (s *SessionService) Create(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	session := s.sessions.Create(req.Msg.GetValue())
	msg, err := structpb.NewStruct(map[string]interface{}{
		"id":   session.ID,
		"name": session.Name,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Destroy ends the session whose ID is the request value.
func (s *SessionService) Destroy(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	id := req.Msg.GetValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session id is required"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Handlers returns the connect handlers keyed by procedure path.
func (s *SessionService) Handlers(opts ...connect.HandlerOption) map[string]*connect.Handler {
	return map[string]*connect.Handler{
		CreateSessionProcedure:  connect.NewUnaryHandler(CreateSessionProcedure, s.Create, opts...),
		DestroySessionProcedure: connect.NewUnaryHandler(DestroySessionProcedure, s.Destroy, opts...),
	}
}
