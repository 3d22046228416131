package websocket

import (
	"cardstudio/core"
	"cardstudio/design"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type ackInvoker func(err error, payload map[string]any)

// Preview is the design state pushed to everyone watching a design. Filters
// holds the CSS filter expression of each item, keyed by item id.
type Preview struct {
	DesignID   string            `json:"designId"`
	Items      []core.Item       `json:"items"`
	Background core.Background   `json:"background"`
	SelectedID *string           `json:"selectedId,omitempty"`
	Filters    map[string]string `json:"filters"`
}

var (
	activeRooms = make(map[string]int)
	roomsMutex  sync.RWMutex
)

// GetActiveRooms returns the number of connected viewers per design.
func GetActiveRooms() map[string]int {
	roomsMutex.RLock()
	defer roomsMutex.RUnlock()

	rooms := make(map[string]int, len(activeRooms))
	for k, v := range activeRooms {
		rooms[k] = v
	}
	return rooms
}

func setRoomCount(roomID string, count int) {
	roomsMutex.Lock()
	defer roomsMutex.Unlock()
	if count <= 0 {
		delete(activeRooms, roomID)
		return
	}
	activeRooms[roomID] = count
}

// SetupSocketIO serves live previews: an editor pushes "design-update" for a
// design and every other socket in that design's room receives
// "preview-update".
func SetupSocketIO(allowedOrigins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigin(allowedOrigins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		me := socket.Id()
		log := logrus.WithField("socket", me)
		log.Debug("Preview socket connected")

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-preview", func(datas ...any) {
			ack, args := extractAck(datas)
			roomID := firstString(args)
			if roomID == "" {
				err := fmt.Errorf("design id is required")
				respondWithAck(socket, ack, "join-preview-ack", makeAckPayload(nil, err), err)
				return
			}

			room := socketio.Room(roomID)
			socket.Join(room)
			utils.Log().Printf("Socket %v has joined preview %v\n", me, room)

			srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, fetchErr error) {
				if fetchErr != nil {
					respondWithAck(socket, ack, "join-preview-ack", makeAckPayload(nil, fetchErr), fetchErr)
					return
				}
				setRoomCount(roomID, len(users))

				ids := make([]socketio.SocketId, 0, len(users))
				for _, user := range users {
					ids = append(ids, user.Id())
				}
				_ = srv.In(room).Emit("room-user-change", ids)

				payload := makeAckPayload(nil, nil)
				payload["user_count"] = len(users)
				respondWithAck(socket, ack, "join-preview-ack", payload, nil)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("design-update", func(datas ...any) {
			ack, args := extractAck(datas)
			if len(args) < 2 {
				err := fmt.Errorf("design id and state are required")
				respondWithAck(socket, ack, "design-update-ack", makeAckPayload(nil, err), err)
				return
			}
			roomID, _ := args[0].(string)
			if !joined(socket.Rooms().Keys(), roomID) {
				err := fmt.Errorf("not a member of design %q", roomID)
				log.WithField("room", roomID).Warn("Rejected design update from outside the room")
				respondWithAck(socket, ack, "design-update-ack", makeAckPayload(args[1], err), err)
				return
			}
			preview, err := decodePreview(roomID, args[1])
			if err != nil {
				log.WithError(err).Warn("Rejected design update")
				respondWithAck(socket, ack, "design-update-ack", makeAckPayload(args[1], err), err)
				return
			}

			err = socket.Broadcast().To(socketio.Room(roomID)).Emit("preview-update", preview)
			respondWithAck(socket, ack, "design-update-ack", makeAckPayload(args[1], err), err)
		})

		socket.On("disconnecting", func(datas ...any) {
			for _, currentRoom := range socket.Rooms().Keys() {
				roomID := string(currentRoom)
				if roomID == string(me) {
					continue
				}
				srv.In(currentRoom).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
					others := make([]socketio.SocketId, 0, len(users))
					for _, user := range users {
						if user.Id() != me {
							others = append(others, user.Id())
						}
					}
					setRoomCount(roomID, len(others))
					if len(others) > 0 {
						utils.Log().Printf("leaving user, preview %v has users %v\n", currentRoom, others)
						_ = srv.In(currentRoom).Emit("room-user-change", others)
					}
				})
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// joined reports whether roomID is one of the socket's rooms.
func joined(rooms []socketio.Room, roomID string) bool {
	if roomID == "" {
		return false
	}
	for _, room := range rooms {
		if string(room) == roomID {
			return true
		}
	}
	return false
}

// decodePreview validates a raw design state sent by an editor. The state
// goes through the item model so unknown kinds and malformed attributes are
// rejected before anyone else sees them.
func decodePreview(roomID string, raw any) (*Preview, error) {
	if roomID == "" {
		return nil, fmt.Errorf("missing design id")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var preview Preview
	if err := json.Unmarshal(data, &preview); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	preview.DesignID = roomID
	if preview.Items == nil {
		preview.Items = []core.Item{}
	}
	preview.Filters = make(map[string]string, len(preview.Items))
	for _, item := range preview.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("item without id")
		}
		preview.Filters[item.ID] = design.ItemFilterExpression(item)
	}
	return &preview, nil
}

// corsOrigin converts the configured origins to what engine.io expects: the
// string "*" for any origin, else a list.
func corsOrigin(allowed []string) any {
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		return "*"
	}
	origins := make([]any, 0, len(allowed))
	for _, o := range allowed {
		origins = append(origins, o)
	}
	return origins
}

func firstString(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	ack = wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		value.Call(buildAckArgs(typ, err, payload))
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		var arg any
		switch {
		case numIn == 1 && err != nil:
			arg = err
		case numIn == 1:
			arg = payload
		case i == 0:
			arg = err
		case i == 1:
			arg = payload
		}
		args[i] = coerceValue(arg, typ.In(i))
	}
	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(targetType):
		return rv
	case rv.Type().ConvertibleTo(targetType):
		return rv.Convert(targetType)
	case targetType.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}
	return reflect.Zero(targetType)
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}
	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}

func makeAckPayload(original any, ackErr error) map[string]any {
	response := map[string]any{"status": "ok"}
	if ackErr != nil {
		response["status"] = "error"
		response["error"] = ackErr.Error()
	}
	if value, ok := original.(map[string]any); ok {
		if id, ok := value["messageId"].(string); ok && id != "" {
			response["messageId"] = id
		}
	}
	return response
}
